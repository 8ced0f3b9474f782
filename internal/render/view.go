package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/SoarinFerret/AttokWarden/internal/boardtime"
	"github.com/SoarinFerret/AttokWarden/internal/eval"
	"github.com/SoarinFerret/AttokWarden/internal/session"
)

// Mode says how much of the grid a request invalidates.
type Mode int

const (
	// ModeTimer relabels existing cells in place.
	ModeTimer Mode = iota + 1
	// ModeFull tears down and rebuilds every cell.
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeTimer:
		return "timer"
	case ModeFull:
		return "full"
	}
	return "unknown"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "timer":
		*m = ModeTimer
	case "full":
		*m = ModeFull
	default:
		return fmt.Errorf("unknown render mode %q", text)
	}
	return nil
}

// CellView is everything a renderer needs to draw one student card.
type CellView struct {
	Name             string     `json:"name"`
	Class            eval.Class `json:"class"`
	Text             string     `json:"text"`
	CheckIn          string     `json:"check_in"`
	End              string     `json:"end"`
	ClassMinutes     int        `json:"class_minutes"`
	RemainingMinutes int        `json:"remaining_minutes"`
	Departed         bool       `json:"departed"`
	AutoDeparted     bool       `json:"auto_departed"`
}

// View is an ordered, immutable picture of the board at one instant.
type View struct {
	At       time.Time  `json:"at"`
	Active   []CellView `json:"active"`
	Departed []CellView `json:"departed"`
}

func NewCellView(rec session.Record, now time.Time) CellView {
	return CellView{
		Name:             rec.Name,
		Class:            eval.Classify(rec, now),
		Text:             eval.CellText(rec, now),
		CheckIn:          boardtime.Format(rec.CheckIn),
		End:              boardtime.Format(rec.End),
		ClassMinutes:     rec.ClassMinutes,
		RemainingMinutes: rec.RemainingMinutes(now),
		Departed:         rec.CheckedOut,
		AutoDeparted:     rec.AutoCheckedOut,
	}
}

// NewView builds a view from already ordered lists.
func NewView(active, departed []session.Record, now time.Time) View {
	v := View{
		At:       now,
		Active:   make([]CellView, 0, len(active)),
		Departed: make([]CellView, 0, len(departed)),
	}
	for _, rec := range active {
		v.Active = append(v.Active, NewCellView(rec, now))
	}
	for _, rec := range departed {
		v.Departed = append(v.Departed, NewCellView(rec, now))
	}
	return v
}

// Composition identifies which cells are shown and in what order. Two
// views with the same composition differ only in labels and classes.
func (v View) Composition() string {
	var b strings.Builder
	for _, c := range v.Active {
		b.WriteString(c.Name)
		b.WriteByte(0)
	}
	b.WriteByte('|')
	for _, c := range v.Departed {
		b.WriteString(c.Name)
		b.WriteByte(0)
	}
	return b.String()
}

// Request is a unit of work for the UI side.
type Request struct {
	Mode Mode `json:"mode"`
	View View `json:"view"`
}
