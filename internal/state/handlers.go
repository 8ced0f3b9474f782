package state

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/boardtime"
	"github.com/SoarinFerret/AttokWarden/internal/event"
	"github.com/SoarinFerret/AttokWarden/internal/scrape"
	"github.com/SoarinFerret/AttokWarden/internal/session"
)

// Reconcile folds a snapshot into the store and returns the arrivals and
// departures it observed. Students missing from the snapshot are kept.
func (m *Manager) Reconcile(snap scrape.Snapshot, now time.Time) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconcile(snap, now)
}

func (m *Manager) reconcile(snap scrape.Snapshot, now time.Time) []event.Event {
	if len(snap) == 0 {
		return nil
	}

	silent := m.opts.InitialLoadSuppress && !m.seeded
	m.seeded = true

	var events []event.Event
	for _, raw := range snap.Names() {
		entry := snap[raw]
		if !entry.CheckedIn {
			continue
		}
		name := scrape.NormalizeName(raw)

		rec, known := m.students[name]
		if !known {
			rec = m.admit(name, entry.CheckInTime, now, silent)
			if !silent {
				events = append(events, event.New(event.Arrived, name, rec.CheckIn))
			}
		}

		if entry.CheckedOut && !rec.CheckedOut {
			at, err := boardtime.Parse(entry.CheckOutTime, rec.CheckIn)
			if err != nil {
				m.log.Warn("unreadable check-out time",
					zap.String("student", name), zap.String("raw", entry.CheckOutTime), zap.Error(err))
				at = time.Time{}
			}
			rec.Depart(at)
			if !rec.NotifiedDeparture {
				rec.NotifiedDeparture = true
				if !silent {
					when := at
					if when.IsZero() {
						when = now
					}
					events = append(events, event.New(event.Departed, name, when))
				}
			}
		}
	}
	return events
}

// admit creates the record for a student seen checked in for the first time.
func (m *Manager) admit(name, checkInRaw string, now time.Time, silent bool) *session.Record {
	checkIn, err := boardtime.Parse(checkInRaw, now)
	if err != nil {
		m.log.Warn("unreadable check-in time, using now",
			zap.String("student", name), zap.String("raw", checkInRaw), zap.Error(err))
		checkIn = now
	}

	rec := session.NewRecord(name, checkIn, m.opts.DefaultClassMinutes)
	if rec.End.Before(now) {
		// class already over when first seen; no stale overrun alert
		rec.AlertedOverrun = true
	}
	rec.NotifiedArrival = true
	if silent && !rec.End.After(now) {
		rec.NotifiedDeparture = true
	}

	m.students[name] = rec
	m.log.Debug("student admitted",
		zap.String("student", name), zap.Time("check_in", rec.CheckIn), zap.Time("end", rec.End), zap.Bool("silent", silent))
	return rec
}

// Sweep applies the end-of-class policy to every active student whose end
// time has passed. It is idempotent.
func (m *Manager) Sweep(now time.Time) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep(now)
}

func (m *Manager) sweep(now time.Time) []event.Event {
	names := make([]string, 0, len(m.students))
	for name, rec := range m.students {
		if rec.Overrun(now) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var events []event.Event
	for _, name := range names {
		rec := m.students[name]
		if m.opts.AutoDepart {
			rec.AutoDepart()
			if !rec.NotifiedDeparture {
				rec.NotifiedDeparture = true
				events = append(events, event.New(event.AutoDeparted, name, rec.End))
			}
			continue
		}
		if !rec.AlertedOverrun {
			rec.AlertedOverrun = true
			events = append(events, event.New(event.Overrun, name, rec.End))
		}
	}
	return events
}

// Adjust changes a student's class length by delta minutes, clamped to the
// configured bounds. Moving the end time back into the future re-arms the
// overrun alert.
func (m *Manager) Adjust(name string, delta int, now time.Time) (session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scrape.NormalizeName(name)
	rec, ok := m.students[key]
	if !ok {
		return session.Record{}, fmt.Errorf("%w: %s", ErrUnknownStudent, key)
	}
	if rec.CheckedOut {
		return session.Record{}, fmt.Errorf("%w: %s", ErrDeparted, key)
	}

	minutes := rec.ClassMinutes + delta
	if minutes < m.opts.ClassMinutesMin {
		minutes = m.opts.ClassMinutesMin
	}
	if minutes > m.opts.ClassMinutesMax {
		minutes = m.opts.ClassMinutesMax
	}
	if minutes != rec.ClassMinutes {
		rec.SetClassMinutes(minutes)
	}
	if rec.End.After(now) {
		rec.AlertedOverrun = false
	}
	return *rec, nil
}
