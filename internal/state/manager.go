package state

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/scrape"
	"github.com/SoarinFerret/AttokWarden/internal/session"
)

// Manager is the in-memory store of today's students. All access goes
// through its mutex; the lock is only held for bounded in-memory work.
type Manager struct {
	mu       sync.Mutex
	opts     Options
	log      *zap.Logger
	students map[string]*session.Record
	// seeded is set once the first non-empty snapshot has been reconciled.
	seeded bool
}

func NewManager(opts Options, log *zap.Logger) *Manager {
	return &Manager{
		opts:     opts,
		log:      log,
		students: make(map[string]*session.Record),
	}
}

func (m *Manager) Options() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// Update reconciles a changed snapshot, sweeps, and orders in one critical section.
func (m *Manager) Update(snap scrape.Snapshot, now time.Time) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.reconcile(snap, now)
	events = append(events, m.sweep(now)...)
	active, departed := m.order(now)
	return Result{Events: events, Active: active, Departed: departed}
}

// Refresh is the timer-only path: sweep and order.
func (m *Manager) Refresh(now time.Time) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.sweep(now)
	active, departed := m.order(now)
	return Result{Events: events, Active: active, Departed: departed}
}

// Order returns active students by remaining time and departed students by
// departure time, ties broken by name.
func (m *Manager) Order(now time.Time) (active, departed []session.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order(now)
}

func (m *Manager) order(now time.Time) (active, departed []session.Record) {
	active = make([]session.Record, 0, len(m.students))
	departed = make([]session.Record, 0, len(m.students))
	for _, rec := range m.students {
		if rec.CheckedOut {
			departed = append(departed, *rec)
		} else {
			active = append(active, *rec)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		ri, rj := active[i].Remaining(now), active[j].Remaining(now)
		if ri != rj {
			return ri < rj
		}
		return active[i].Name < active[j].Name
	})

	sort.Slice(departed, func(i, j int) bool {
		ti, tj := departed[i].CheckOut, departed[j].CheckOut
		// unknown departure times go last
		if ti.IsZero() != tj.IsZero() {
			return tj.IsZero()
		}
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return departed[i].Name < departed[j].Name
	})

	return active, departed
}

func (m *Manager) Get(name string) (session.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.students[scrape.NormalizeName(name)]
	if !ok {
		return session.Record{}, false
	}
	return *rec, true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students)
}

// Reset forgets every student and all notification latches.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students = make(map[string]*session.Record)
	m.seeded = false
}
