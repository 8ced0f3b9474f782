package scrape

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	checkInToken  = "등원"
	checkOutToken = "하원"
)

// NormalizeName trims and NFC-normalises a student name so the same name
// always maps to the same store key.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// NameFilter rejects row lines that are board labels rather than names.
// Exclusions are matched exactly, never as substrings.
type NameFilter struct {
	excluded map[string]struct{}
}

func NewNameFilter(excluded []string) NameFilter {
	f := NameFilter{excluded: make(map[string]struct{}, len(excluded))}
	for _, name := range excluded {
		f.excluded[NormalizeName(name)] = struct{}{}
	}
	return f
}

func (f NameFilter) Valid(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 20 {
		return false
	}
	if _, ok := f.excluded[name]; ok {
		return false
	}
	letters := 0
	for i, r := range name {
		switch {
		case unicode.IsLetter(r):
			letters++
		case i > 0 && (r == ' ' || r == '.' || r == '-' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return letters > 0
}

// tokenTime finds token immediately followed by "(" and returns the text up to
// the closing parenthesis. "등원 -" and a bare "등원" do not count.
func tokenTime(text, token string) (string, bool) {
	marker := token + "("
	idx := strings.Index(text, marker)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(marker):]
	if end := strings.IndexByte(rest, ')'); end >= 0 {
		rest = rest[:end]
	} else if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return rest, true
}

// ParseRow reads one row's text (one visual line per text line) into a name and entry.
func ParseRow(text string, filter NameFilter) (string, Entry, bool) {
	var entry Entry
	entry.CheckInTime, entry.CheckedIn = tokenTime(text, checkInToken)
	entry.CheckOutTime, entry.CheckedOut = tokenTime(text, checkOutToken)

	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, checkInToken) || strings.Contains(line, checkOutToken) {
			continue
		}
		candidate := NormalizeName(line)
		if filter.Valid(candidate) {
			return candidate, entry, true
		}
	}
	return "", Entry{}, false
}

// merge folds a duplicate row for the same name into e.
func (e Entry) merge(o Entry) Entry {
	if o.CheckedIn {
		e.CheckedIn = true
		if e.CheckInTime == "" {
			e.CheckInTime = o.CheckInTime
		}
	}
	if o.CheckedOut {
		e.CheckedOut = true
		if e.CheckOutTime == "" {
			e.CheckOutTime = o.CheckOutTime
		}
	}
	return e
}
