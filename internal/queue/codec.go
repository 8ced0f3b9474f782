package queue

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/SoarinFerret/AttokWarden/internal/event"
)

// TypeEvent tags messages carrying a msgpack encoded event.Event.
const TypeEvent = "event"

func EncodeEvent(ev event.Event) (Message, error) {
	body, err := msgpack.Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("encode event: %w", err)
	}
	return Message{Type: TypeEvent, Body: body}, nil
}

func DecodeEvent(msg Message) (event.Event, error) {
	if msg.Type != TypeEvent {
		return event.Event{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var ev event.Event
	if err := msgpack.Unmarshal(msg.Body, &ev); err != nil {
		return event.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if !ev.Kind.Valid() {
		return event.Event{}, fmt.Errorf("decode event: unknown kind %q", ev.Kind)
	}
	return ev, nil
}
