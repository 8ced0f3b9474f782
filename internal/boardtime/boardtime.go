package boardtime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	PeriodAM = "오전"
	PeriodPM = "오후"
)

// ErrTimeParse is returned for any string outside the board's time grammar.
var ErrTimeParse = errors.New("board time parse failed")

// ClockTime is a wall-clock hour and minute as displayed on the attendance board.
// Hour is stored in 24h form.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "(오전|오후) H:MM". Leading and trailing whitespace is ignored,
// everything else must match exactly.
func ParseClock(s string) (ClockTime, error) {
	str := strings.TrimSpace(s)

	period, rest, ok := strings.Cut(str, " ")
	if !ok {
		return ClockTime{}, fmt.Errorf("%w: %q: expected '<period> H:MM'", ErrTimeParse, s)
	}
	if period != PeriodAM && period != PeriodPM {
		return ClockTime{}, fmt.Errorf("%w: %q: unknown period %q", ErrTimeParse, s, period)
	}

	hourStr, minStr, ok := strings.Cut(rest, ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("%w: %q: missing ':'", ErrTimeParse, s)
	}

	hour, err := parseHour(hourStr)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q: %v", ErrTimeParse, s, err)
	}
	minute, err := parseMinute(minStr)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q: %v", ErrTimeParse, s, err)
	}

	// 오전 12:MM is just after midnight, 오후 12:MM is just after noon
	switch {
	case period == PeriodAM && hour == 12:
		hour = 0
	case period == PeriodPM && hour != 12:
		hour += 12
	}

	return ClockTime{Hour: hour, Minute: minute}, nil
}

func parseHour(s string) (int, error) {
	switch len(s) {
	case 1:
		if s[0] < '1' || s[0] > '9' {
			return 0, fmt.Errorf("invalid hour %q", s)
		}
		return int(s[0] - '0'), nil
	case 2:
		if s[0] != '1' || s[1] < '0' || s[1] > '2' {
			return 0, fmt.Errorf("invalid hour %q", s)
		}
		return 10 + int(s[1]-'0'), nil
	}
	return 0, fmt.Errorf("invalid hour %q", s)
}

func parseMinute(s string) (int, error) {
	if len(s) != 2 || s[0] < '0' || s[0] > '5' || s[1] < '0' || s[1] > '9' {
		return 0, fmt.Errorf("invalid minute %q", s)
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), nil
}

// String formats the clock time back into board notation.
func (c ClockTime) String() string {
	period := PeriodAM
	hour := c.Hour
	if hour >= 12 {
		period = PeriodPM
		hour -= 12
	}
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%s %d:%02d", period, hour, c.Minute)
}

// On places the clock time on the calendar day of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

// Parse parses a board time string and anchors it to the day of ref.
func Parse(s string, ref time.Time) (time.Time, error) {
	ct, err := ParseClock(s)
	if err != nil {
		return time.Time{}, err
	}
	return ct.On(ref), nil
}

// Format renders t as a board time string.
func Format(t time.Time) string {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}.String()
}
