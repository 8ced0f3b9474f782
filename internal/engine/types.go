package engine

import (
	"context"
	"errors"
	"time"

	"github.com/SoarinFerret/AttokWarden/internal/boardtime"
	"github.com/SoarinFerret/AttokWarden/internal/event"
	"github.com/SoarinFerret/AttokWarden/internal/metrics"
	"github.com/SoarinFerret/AttokWarden/internal/render"
)

var (
	ErrSuspended      = errors.New("engine is suspended, restart it")
	ErrNotRunning     = errors.New("engine is not running")
	ErrAlreadyRunning = errors.New("engine is already running")
)

// State is the engine lifecycle state.
type State string

const (
	// StateIdle waits for the operator to confirm the board session is logged in.
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSuspended State = "suspended"
	StateStopped   State = "stopped"
)

// Notifier receives events produced by a tick. Enqueue must not block or
// drop: the events are already latched in the store.
type Notifier interface {
	Enqueue(ctx context.Context, events []event.Event) error
	Reset()
}

type Options struct {
	PollInterval     time.Duration
	RefreshInterval  time.Duration
	FailureThreshold int

	Clock   boardtime.Clock
	Metrics *metrics.Metrics
	Renders *render.Queue
	// OnSuspend is called, on its own goroutine, when scrape failures reach
	// the threshold.
	OnSuspend func(err error)
}

// Status is a point-in-time summary for control surfaces.
type Status struct {
	State      State     `json:"state"`
	Failures   int       `json:"consecutive_failures"`
	Paused     bool      `json:"paused"`
	Active     int       `json:"active"`
	Departed   int       `json:"departed"`
	LastScrape time.Time `json:"last_scrape,omitzero"`
	LastError  string    `json:"last_error,omitempty"`

	// AutoDepart is the end-of-class policy: true closes classes at their
	// end time, false keeps them on the board with an overrun alert.
	AutoDepart      bool `json:"auto_depart"`
	ClassMinutesMin int  `json:"class_minutes_min"`
	ClassMinutesMax int  `json:"class_minutes_max"`
}
