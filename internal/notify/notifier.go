package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/event"
	"github.com/SoarinFerret/AttokWarden/internal/metrics"
	"github.com/SoarinFerret/AttokWarden/internal/queue"
)

// Forwarder republishes events to another system.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, ev event.Event) error
}

// Notifier delivers events to sinks at most once per event key. Events are
// handed over through a queue so delivery never runs on the engine's tick.
type Notifier struct {
	q          queue.Queue
	log        *zap.Logger
	metrics    *metrics.Metrics
	sinks      []Named
	forwarders []Forwarder

	voice atomic.Bool

	mu        sync.Mutex
	delivered map[string]struct{}

	// pending holds encoded events not yet handed to q. It is unbounded so a
	// slow sink never makes the engine drop an event it has already latched.
	pendingMu sync.Mutex
	pending   []queue.Message
	wake      chan struct{}
}

func New(q queue.Queue, log *zap.Logger, m *metrics.Metrics, sinks ...Named) *Notifier {
	n := &Notifier{
		q:         q,
		log:       log,
		metrics:   m,
		sinks:     sinks,
		delivered: make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
	n.voice.Store(true)
	return n
}

// AddForwarder registers f. Not safe to call once Run has started.
func (n *Notifier) AddForwarder(f Forwarder) {
	n.forwarders = append(n.forwarders, f)
}

func (n *Notifier) Voice() bool {
	return n.voice.Load()
}

func (n *Notifier) SetVoice(on bool) {
	n.voice.Store(on)
	n.log.Info("voice toggled", zap.Bool("voice", on))
}

// ToggleVoice flips speech on or off and returns the new setting.
func (n *Notifier) ToggleVoice() bool {
	for {
		old := n.voice.Load()
		if n.voice.CompareAndSwap(old, !old) {
			n.log.Info("voice toggled", zap.Bool("voice", !old))
			return !old
		}
	}
}

// Enqueue appends events for delivery in order. It never blocks and never
// drops; the events are passed to the queue by Run.
func (n *Notifier) Enqueue(_ context.Context, events []event.Event) error {
	msgs := make([]queue.Message, 0, len(events))
	for _, ev := range events {
		msg, err := queue.EncodeEvent(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}

	n.pendingMu.Lock()
	n.pending = append(n.pending, msgs...)
	n.pendingMu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending is the number of events waiting to reach the queue.
func (n *Notifier) Pending() int {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	return len(n.pending)
}

// Run delivers queued events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	msgs, err := n.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume events: %w", err)
	}
	go n.feed(ctx)

	for msg := range msgs {
		ev, err := queue.DecodeEvent(msg)
		if err != nil {
			n.log.Warn("dropping undecodable message", zap.Error(err))
			continue
		}
		n.Dispatch(ctx, ev)
	}
	return nil
}

// feed moves pending events onto the queue, blocking on the queue rather
// than on Enqueue.
func (n *Notifier) feed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.wake:
		}

		for {
			n.pendingMu.Lock()
			if len(n.pending) == 0 {
				n.pendingMu.Unlock()
				break
			}
			msg := n.pending[0]
			n.pendingMu.Unlock()

			if err := n.q.Publish(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return
				}
				n.log.Warn("failed to queue notification, retrying", zap.Error(err))
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			n.pendingMu.Lock()
			n.pending = n.pending[1:]
			n.pendingMu.Unlock()
		}
	}
}

// Dispatch delivers one event to every sink and forwarder. It reports
// whether the event was delivered or dropped as a duplicate.
func (n *Notifier) Dispatch(ctx context.Context, ev event.Event) bool {
	key := ev.Key()
	n.mu.Lock()
	if _, seen := n.delivered[key]; seen {
		n.mu.Unlock()
		n.log.Debug("duplicate event suppressed", zap.String("key", key))
		return false
	}
	n.delivered[key] = struct{}{}
	n.mu.Unlock()

	text := Message(ev)
	t := tones[ev.Kind]
	voice := n.Voice()

	n.log.Info("event",
		zap.String("kind", string(ev.Kind)), zap.String("student", ev.Student), zap.Time("at", ev.At))

	for _, s := range n.sinks {
		n.deliver(s.Name, "beep", s.Sink.Beep(t.freqHz, t.durationMs))
		if voice {
			n.deliver(s.Name, "speak", s.Sink.Speak(text))
		}
		n.deliver(s.Name, "log", s.Sink.Log(text))
	}
	for _, f := range n.forwarders {
		n.deliver(f.Name(), "forward", f.Forward(ctx, ev))
	}
	return true
}

func (n *Notifier) deliver(sink, op string, err error) {
	if err == nil {
		return
	}
	err = fmt.Errorf("%w: %s %s: %w", ErrSinkFailed, sink, op, err)
	n.log.Warn("notification delivery failed", zap.String("sink", sink), zap.Error(err))
	n.metrics.SinkFailure(sink)
}

// Reset forgets delivered keys for a new session.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = make(map[string]struct{})
}

// QueueForwarder pushes events onto a shared queue for remote announcers.
type QueueForwarder struct {
	Queue queue.Queue
	Label string
}

func (f QueueForwarder) Name() string {
	if f.Label == "" {
		return "queue"
	}
	return f.Label
}

func (f QueueForwarder) Forward(ctx context.Context, ev event.Event) error {
	msg, err := queue.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return f.Queue.Publish(ctx, msg)
}
