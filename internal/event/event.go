package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	Arrived      Kind = "ARRIVED"
	Departed     Kind = "DEPARTED"
	AutoDeparted Kind = "AUTO_DEPARTED"
	Overrun      Kind = "OVERRUN"
)

func (k Kind) Valid() bool {
	switch k {
	case Arrived, Departed, AutoDeparted, Overrun:
		return true
	}
	return false
}

// Event is a state transition for one student.
type Event struct {
	ID      string    `json:"id" msgpack:"id"`
	Kind    Kind      `json:"kind" msgpack:"kind"`
	Student string    `json:"student" msgpack:"student"`
	At      time.Time `json:"at" msgpack:"at"`
}

func New(kind Kind, student string, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Student: student,
		At:      at,
	}
}

// Key identifies what may be notified at most once per session: one arrival
// and one departure (observed or automatic) per student, and one overrun per
// student and scheduled end.
func (e Event) Key() string {
	switch e.Kind {
	case Arrived:
		return "arrival|" + e.Student
	case Departed, AutoDeparted:
		return "departure|" + e.Student
	default:
		return fmt.Sprintf("%s|%s|%d", e.Kind, e.Student, e.At.Unix())
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s)@%s", e.Kind, e.Student, e.At.Format("15:04:05"))
}
