package state

import (
	"errors"

	"github.com/SoarinFerret/AttokWarden/internal/event"
	"github.com/SoarinFerret/AttokWarden/internal/session"
)

var (
	ErrUnknownStudent = errors.New("student not on the board today")
	ErrDeparted       = errors.New("student has already departed")
)

// Options configures class length bounds and the end-of-class policy.
type Options struct {
	DefaultClassMinutes int
	ClassMinutesMin     int
	ClassMinutesMax     int
	// AutoDepart closes a class at its end time; otherwise the student stays
	// active and a single OVERRUN is raised.
	AutoDepart bool
	// InitialLoadSuppress seeds the first non-empty snapshot silently.
	InitialLoadSuppress bool
}

func DefaultOptions() Options {
	return Options{
		DefaultClassMinutes: 90,
		ClassMinutesMin:     30,
		ClassMinutesMax:     240,
		AutoDepart:          true,
		InitialLoadSuppress: true,
	}
}

// Result is what one tick produced, captured under a single lock so the
// ordered lists and events are consistent with each other.
type Result struct {
	Events   []event.Event
	Active   []session.Record
	Departed []session.Record
}
