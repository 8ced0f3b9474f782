package scrape

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnavailable marks a transient failure to read the board.
	ErrUnavailable = errors.New("board unavailable")
	// ErrMalformed marks a board page whose structure was not recognised.
	ErrMalformed = errors.New("board page malformed")
)

// Entry is one student's row as read from the board. Time strings are the
// raw parenthesised substrings.
type Entry struct {
	CheckedIn    bool   `json:"checked_in"`
	CheckedOut   bool   `json:"checked_out"`
	CheckInTime  string `json:"check_in_time,omitempty"`
	CheckOutTime string `json:"check_out_time,omitempty"`
}

// Snapshot maps a student name to its board entry.
type Snapshot map[string]Entry

// Names returns the snapshot's names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Digest fingerprints the parts of a snapshot that can change the store:
// for every checked-in student, whether and when they checked out.
func Digest(s Snapshot) string {
	var b strings.Builder
	for _, name := range s.Names() {
		e := s[name]
		if !e.CheckedIn {
			continue
		}
		b.WriteString(name)
		b.WriteByte(0x1f)
		b.WriteString(strconv.FormatBool(e.CheckedOut))
		b.WriteByte(0x1f)
		b.WriteString(e.CheckOutTime)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
