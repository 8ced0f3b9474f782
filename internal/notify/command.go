package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandSink runs external programs for audio. Arguments may contain the
// placeholders {text}, {freq} and {ms}; when {text} is absent the text is
// appended as the last argument.
type CommandSink struct {
	SpeakCommand []string
	BeepCommand  []string
	Timeout      time.Duration
}

func (s CommandSink) Beep(freqHz, durationMs int) error {
	if len(s.BeepCommand) == 0 {
		return nil
	}
	r := strings.NewReplacer("{freq}", strconv.Itoa(freqHz), "{ms}", strconv.Itoa(durationMs))
	args := make([]string, len(s.BeepCommand))
	for i, a := range s.BeepCommand {
		args[i] = r.Replace(a)
	}
	return s.run(args)
}

func (s CommandSink) Speak(text string) error {
	if len(s.SpeakCommand) == 0 {
		return nil
	}
	args := make([]string, 0, len(s.SpeakCommand)+1)
	substituted := false
	for _, a := range s.SpeakCommand {
		if strings.Contains(a, "{text}") {
			substituted = true
			a = strings.ReplaceAll(a, "{text}", text)
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, text)
	}
	return s.run(args)
}

func (CommandSink) Log(string) error { return nil }

func (s CommandSink) run(args []string) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
