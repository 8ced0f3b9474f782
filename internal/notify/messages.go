package notify

import (
	"github.com/SoarinFerret/AttokWarden/internal/event"
)

type tone struct {
	freqHz     int
	durationMs int
}

var tones = map[event.Kind]tone{
	event.Arrived:      {880, 150},
	event.Departed:     {660, 200},
	event.AutoDeparted: {660, 200},
	event.Overrun:      {440, 600},
}

// Message is the spoken and logged text for an event.
func Message(ev event.Event) string {
	switch ev.Kind {
	case event.Arrived:
		return ev.Student + " 학생이 등원했습니다"
	case event.Departed:
		return ev.Student + " 학생이 하원했습니다"
	case event.AutoDeparted:
		return ev.Student + " 학생의 수업 시간이 끝났습니다"
	case event.Overrun:
		return ev.Student + " 학생의 수업 시간이 지났습니다"
	}
	return ev.Student
}
