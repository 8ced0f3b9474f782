package notify

import (
	"errors"

	"go.uber.org/zap"
)

// ErrSinkFailed wraps every delivery error. It is logged, never returned
// to the engine.
var ErrSinkFailed = errors.New("notification sink failed")

// Sink is a best-effort output capability.
type Sink interface {
	Beep(freqHz, durationMs int) error
	Speak(text string) error
	Log(text string) error
}

// Named pairs a sink with the label used in logs and metrics.
type Named struct {
	Name string
	Sink Sink
}

// Nop discards everything.
type Nop struct{}

func (Nop) Beep(int, int) error { return nil }
func (Nop) Speak(string) error  { return nil }
func (Nop) Log(string) error    { return nil }

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Beep(freqHz, durationMs int) error {
	s.Logger.Debug("beep", zap.Int("freq_hz", freqHz), zap.Int("duration_ms", durationMs))
	return nil
}

func (s LogSink) Speak(text string) error {
	s.Logger.Debug("speak", zap.String("text", text))
	return nil
}

func (s LogSink) Log(text string) error {
	s.Logger.Info(text)
	return nil
}
