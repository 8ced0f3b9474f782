package notify

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SoarinFerret/AttokWarden/internal/event"
	"github.com/SoarinFerret/AttokWarden/internal/metrics"
	"github.com/SoarinFerret/AttokWarden/internal/queue"
)

type recordingSink struct {
	mu     sync.Mutex
	calls  []string
	fail   error
	notify chan struct{}
}

func (s *recordingSink) record(call string) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if s.notify != nil {
		s.notify <- struct{}{}
	}
	return s.fail
}

func (s *recordingSink) Beep(int, int) error     { return s.record("beep") }
func (s *recordingSink) Speak(text string) error { return s.record("speak:" + text) }
func (s *recordingSink) Log(text string) error   { return s.record("log:" + text) }

func (s *recordingSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type recordingForwarder struct {
	mu     sync.Mutex
	events []event.Event
}

func (f *recordingForwarder) Name() string { return "test" }

func (f *recordingForwarder) Forward(_ context.Context, ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

var at = time.Date(2026, 3, 9, 15, 10, 0, 0, time.UTC)

func newTestNotifier(t *testing.T, sinks ...Named) *Notifier {
	return New(queue.NewInMemory(16), zaptest.NewLogger(t), nil, sinks...)
}

func TestDispatchDeliversOnce(t *testing.T) {
	sink := &recordingSink{}
	n := newTestNotifier(t, Named{"rec", sink})

	ev := event.New(event.Arrived, "김도윤", at)
	assert.True(t, n.Dispatch(context.Background(), ev))
	// a second event with the same key, e.g. after a restart
	assert.False(t, n.Dispatch(context.Background(), event.New(event.Arrived, "김도윤", at.Add(time.Minute))))

	assert.Equal(t, []string{
		"beep",
		"speak:김도윤 학생이 등원했습니다",
		"log:김도윤 학생이 등원했습니다",
	}, sink.Calls())
}

func TestDepartureKindsShareLatch(t *testing.T) {
	sink := &recordingSink{}
	n := newTestNotifier(t, Named{"rec", sink})

	assert.True(t, n.Dispatch(context.Background(), event.New(event.AutoDeparted, "김도윤", at)))
	assert.False(t, n.Dispatch(context.Background(), event.New(event.Departed, "김도윤", at)))
}

func TestOverrunRealertsForNewEnd(t *testing.T) {
	n := newTestNotifier(t, Named{"rec", &recordingSink{}})

	assert.True(t, n.Dispatch(context.Background(), event.New(event.Overrun, "김도윤", at)))
	assert.False(t, n.Dispatch(context.Background(), event.New(event.Overrun, "김도윤", at)))
	assert.True(t, n.Dispatch(context.Background(), event.New(event.Overrun, "김도윤", at.Add(10*time.Minute))))
}

func TestVoiceToggle(t *testing.T) {
	sink := &recordingSink{}
	n := newTestNotifier(t, Named{"rec", sink})
	require.True(t, n.Voice())

	assert.False(t, n.ToggleVoice())
	n.Dispatch(context.Background(), event.New(event.Departed, "이서연", at))
	assert.Equal(t, []string{"beep", "log:이서연 학생이 하원했습니다"}, sink.Calls())

	n.SetVoice(true)
	assert.True(t, n.Voice())
}

func TestSinkFailureIsContained(t *testing.T) {
	reg := prometheus.NewRegistry()
	broken := &recordingSink{fail: errors.New("no audio device")}
	good := &recordingSink{}
	n := New(queue.NewInMemory(4), zaptest.NewLogger(t), metrics.New(reg),
		Named{"broken", broken}, Named{"good", good})

	assert.NotPanics(t, func() {
		n.Dispatch(context.Background(), event.New(event.Overrun, "김도윤", at))
	})
	assert.Len(t, good.Calls(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, f := range families {
		if f.GetName() == "attok_sink_failures_total" {
			failures = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 3.0, failures)
}

func TestResetForgetsDelivered(t *testing.T) {
	n := newTestNotifier(t, Named{"rec", &recordingSink{}})
	ev := event.New(event.Arrived, "김도윤", at)
	n.Dispatch(context.Background(), ev)
	n.Reset()
	assert.True(t, n.Dispatch(context.Background(), ev))
}

func TestRunDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{notify: make(chan struct{}, 16)}
	fwd := &recordingForwarder{}
	n := newTestNotifier(t, Named{"rec", sink})
	n.AddForwarder(fwd)
	n.SetVoice(false)

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.NoError(t, n.Enqueue(ctx, []event.Event{
		event.New(event.Arrived, "이서연", at),
		event.New(event.Departed, "이서연", at.Add(time.Hour)),
	}))

	for i := 0; i < 4; i++ {
		select {
		case <-sink.notify:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
	assert.Equal(t, []string{
		"beep", "log:이서연 학생이 등원했습니다",
		"beep", "log:이서연 학생이 하원했습니다",
	}, sink.Calls())

	cancel()
	require.NoError(t, <-done)
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	require.Len(t, fwd.events, 2)
	assert.Equal(t, event.Arrived, fwd.events[0].Kind)
}

func TestEnqueueNeverDropsBehindSlowConsumer(t *testing.T) {
	fwd := &recordingForwarder{}
	n := New(queue.NewInMemory(2), zaptest.NewLogger(t), nil, Named{"rec", &recordingSink{}})
	n.AddForwarder(fwd)

	names := []string{"s0", "s1", "s2", "s3", "s4"}
	var events []event.Event
	for _, name := range names {
		events = append(events, event.New(event.Arrived, name, at))
	}

	// nothing consumes yet; Enqueue must still return at once with everything kept
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	require.NoError(t, n.Enqueue(ctx, events))
	cancel()
	assert.Equal(t, 5, n.Pending())

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go n.Run(runCtx)

	assert.Eventually(t, func() bool {
		fwd.mu.Lock()
		defer fwd.mu.Unlock()
		return len(fwd.events) == len(names)
	}, 2*time.Second, 10*time.Millisecond)

	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	for i, ev := range fwd.events {
		assert.Equal(t, names[i], ev.Student)
	}
	assert.Eventually(t, func() bool { return n.Pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestQueueForwarder(t *testing.T) {
	q := queue.NewInMemory(1)
	f := QueueForwarder{Queue: q, Label: "redis"}
	assert.Equal(t, "redis", f.Name())

	ev := event.New(event.Overrun, "김도윤", at)
	require.NoError(t, f.Forward(context.Background(), ev))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, _ := q.Consume(ctx)
	got, err := queue.DecodeEvent(<-msgs)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
}

func TestCommandSink(t *testing.T) {
	dir := t.TempDir()
	out := dir + "/spoken"
	s := CommandSink{
		SpeakCommand: []string{"sh", "-c", "printf '%s' \"$0\" > " + out, "{text}"},
		BeepCommand:  []string{"sh", "-c", "exit 0", "{freq}", "{ms}"},
	}
	require.NoError(t, s.Speak("김도윤 학생이 등원했습니다"))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "김도윤 학생이 등원했습니다", string(data))

	require.NoError(t, s.Beep(880, 150))
	assert.Error(t, CommandSink{SpeakCommand: []string{"sh", "-c", "exit 3"}}.Speak("x"))
	assert.NoError(t, CommandSink{}.Speak("nothing configured"))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "김도윤 학생의 수업 시간이 지났습니다", Message(event.New(event.Overrun, "김도윤", at)))
	assert.Equal(t, "김도윤 학생의 수업 시간이 끝났습니다", Message(event.New(event.AutoDeparted, "김도윤", at)))
}
