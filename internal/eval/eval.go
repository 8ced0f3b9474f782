package eval

import (
	"fmt"
	"time"

	"github.com/SoarinFerret/AttokWarden/internal/boardtime"
	"github.com/SoarinFerret/AttokWarden/internal/session"
)

// Class is the colour classification of a board cell.
type Class string

const (
	ClassAmple    Class = "ample"    // 60 minutes or more
	ClassSteady   Class = "steady"   // [30, 60)
	ClassSoon     Class = "soon"     // [15, 30)
	ClassClosing  Class = "closing"  // [5, 15)
	ClassCritical Class = "critical" // under 5
	ClassOverrun  Class = "overrun"
	ClassDeparted Class = "departed"
)

// Classify maps a record to its cell class at now. Breakpoints are on
// floored minutes remaining.
func Classify(rec session.Record, now time.Time) Class {
	if rec.CheckedOut {
		return ClassDeparted
	}
	if rec.Overrun(now) {
		return ClassOverrun
	}
	return ClassifyMinutes(rec.RemainingMinutes(now))
}

func ClassifyMinutes(minutes int) Class {
	switch {
	case minutes >= 60:
		return ClassAmple
	case minutes >= 30:
		return ClassSteady
	case minutes >= 15:
		return ClassSoon
	case minutes >= 5:
		return ClassClosing
	case minutes >= 0:
		return ClassCritical
	default:
		return ClassOverrun
	}
}

// Columns is the responsive column count for a viewport width.
func Columns(widthPx, cardWidthPx, minCols, maxCols int) int {
	cols := minCols
	if cardWidthPx > 0 && widthPx > 0 {
		cols = widthPx / cardWidthPx
	}
	if cols < minCols {
		cols = minCols
	}
	if cols > maxCols {
		cols = maxCols
	}
	return cols
}

// CellText is the per-cell status line: remaining time for active
// students, the departure time for departed ones.
func CellText(rec session.Record, now time.Time) string {
	if rec.CheckedOut {
		if rec.CheckOut.IsZero() {
			return "하원"
		}
		label := "하원 " + boardtime.Format(rec.CheckOut)
		if rec.AutoCheckedOut {
			label += " (자동)"
		}
		return label
	}
	minutes := rec.RemainingMinutes(now)
	if minutes < 0 {
		return fmt.Sprintf("%s 초과", formatMinutes(-minutes))
	}
	return fmt.Sprintf("%s 남음", formatMinutes(minutes))
}

// formatMinutes renders a non-negative minute count.
func formatMinutes(minutes int) string {
	hours := minutes / 60
	rest := minutes % 60

	if hours > 0 {
		return fmt.Sprintf("%d시간 %d분", hours, rest)
	}
	return fmt.Sprintf("%d분", rest)
}
