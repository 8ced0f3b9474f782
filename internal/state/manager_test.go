package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/event"
	"github.com/SoarinFerret/AttokWarden/internal/scrape"
	"github.com/SoarinFerret/AttokWarden/internal/session"
)

var seoul = time.FixedZone("KST", 9*60*60)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 9, hour, minute, 0, 0, seoul)
}

func newTestManager(opts Options) *Manager {
	return NewManager(opts, zap.NewNop())
}

func names(recs []session.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func kinds(events []event.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, string(e.Kind)+":"+e.Student)
	}
	return out
}

func TestScenarioWalkthrough(t *testing.T) {
	m := newTestManager(DefaultOptions())

	// cold start with an empty board
	res := m.Update(scrape.Snapshot{}, at(14, 0))
	assert.Empty(t, res.Events)
	assert.Equal(t, 0, m.Len())

	// first non-empty snapshot is seeded silently
	snap := scrape.Snapshot{
		"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"},
	}
	res = m.Update(snap, at(14, 10))
	assert.Empty(t, res.Events)
	rec, ok := m.Get("김도윤")
	require.True(t, ok)
	assert.Equal(t, at(15, 10), rec.End)
	assert.True(t, rec.NotifiedArrival)

	// timer-only refresh
	res = m.Refresh(at(14, 11))
	assert.Empty(t, res.Events)
	require.Len(t, res.Active, 1)
	assert.Equal(t, 59, res.Active[0].RemainingMinutes(at(14, 11)))

	// a genuine arrival
	snap["이서연"] = scrape.Entry{CheckedIn: true, CheckInTime: "오후 2:20"}
	res = m.Update(snap, at(14, 20))
	assert.Equal(t, []string{"ARRIVED:이서연"}, kinds(res.Events))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"김도윤", "이서연"}, names(res.Active))
	assert.Equal(t, 50, res.Active[0].RemainingMinutes(at(14, 20)))
	assert.Equal(t, 90, res.Active[1].RemainingMinutes(at(14, 20)))

	// end of class exactly
	res = m.Refresh(at(15, 10))
	assert.Equal(t, []string{"AUTO_DEPARTED:김도윤"}, kinds(res.Events))
	rec, _ = m.Get("김도윤")
	assert.True(t, rec.AutoCheckedOut)
	assert.Equal(t, at(15, 10), rec.CheckOut)
	assert.Equal(t, []string{"이서연"}, names(res.Active))
	assert.Equal(t, []string{"김도윤"}, names(res.Departed))

	// extend the remaining student
	adjusted, err := m.Adjust("이서연", 10, at(15, 12))
	require.NoError(t, err)
	assert.Equal(t, 100, adjusted.ClassMinutes)
	assert.Equal(t, at(16, 0), adjusted.End)
	res = m.Refresh(at(15, 12))
	assert.Empty(t, res.Events)
	assert.Equal(t, 48, res.Active[0].RemainingMinutes(at(15, 12)))
}

func TestReconcileWithoutSuppression(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialLoadSuppress = false
	m := newTestManager(opts)

	events := m.Reconcile(scrape.Snapshot{
		"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"},
		"박민준": {CheckedIn: false},
	}, at(14, 10))
	assert.Equal(t, []string{"ARRIVED:김도윤"}, kinds(events))
	assert.Equal(t, at(13, 40), events[0].At)
	assert.Equal(t, 1, m.Len())
}

func TestReconcileIsIdempotent(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialLoadSuppress = false
	m := newTestManager(opts)

	snap := scrape.Snapshot{
		"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"},
		"이서연": {CheckedIn: true, CheckInTime: "오후 1:00", CheckedOut: true, CheckOutTime: "오후 2:00"},
	}
	first := m.Reconcile(snap, at(14, 10))
	assert.ElementsMatch(t, []string{"ARRIVED:김도윤", "ARRIVED:이서연", "DEPARTED:이서연"}, kinds(first))

	second := m.Reconcile(snap, at(14, 11))
	assert.Empty(t, second)
}

func TestArrivalPrecedesDepartureInOneTick(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialLoadSuppress = false
	m := newTestManager(opts)

	events := m.Reconcile(scrape.Snapshot{
		"이서연": {CheckedIn: true, CheckInTime: "오후 1:00", CheckedOut: true, CheckOutTime: "오후 2:00"},
	}, at(14, 10))
	assert.Equal(t, []string{"ARRIVED:이서연", "DEPARTED:이서연"}, kinds(events))
	assert.Equal(t, at(14, 0), events[1].At)
}

func TestReconcileKeepsStudentsMissingFromSnapshot(t *testing.T) {
	m := newTestManager(DefaultOptions())
	m.Update(scrape.Snapshot{"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"}}, at(14, 0))
	m.Update(scrape.Snapshot{"이서연": {CheckedIn: true, CheckInTime: "오후 2:00"}}, at(14, 5))
	assert.Equal(t, 2, m.Len())
}

func TestEmptySnapshotDoesNotConsumeSeeding(t *testing.T) {
	m := newTestManager(DefaultOptions())
	m.Update(scrape.Snapshot{}, at(14, 0))
	res := m.Update(scrape.Snapshot{"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"}}, at(14, 10))
	assert.Empty(t, res.Events)
}

func TestUnreadableTimes(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialLoadSuppress = false
	m := newTestManager(opts)

	events := m.Reconcile(scrape.Snapshot{
		"김도윤": {CheckedIn: true, CheckInTime: "garbage"},
	}, at(14, 10))
	require.Len(t, events, 1)
	rec, _ := m.Get("김도윤")
	assert.Equal(t, at(14, 10), rec.CheckIn)

	events = m.Reconcile(scrape.Snapshot{
		"김도윤": {CheckedIn: true, CheckInTime: "garbage", CheckedOut: true, CheckOutTime: "??"},
	}, at(14, 20))
	assert.Equal(t, []string{"DEPARTED:김도윤"}, kinds(events))
	rec, _ = m.Get("김도윤")
	assert.True(t, rec.CheckedOut)
	assert.True(t, rec.CheckOut.IsZero())
}

func TestLateBootSeedsWithoutAlerts(t *testing.T) {
	for _, autoDepart := range []bool{true, false} {
		opts := DefaultOptions()
		opts.AutoDepart = autoDepart
		m := newTestManager(opts)

		res := m.Update(scrape.Snapshot{
			"김도윤": {CheckedIn: true, CheckInTime: "오후 12:00"},
		}, at(16, 0))
		assert.Empty(t, res.Events, "auto_depart=%v", autoDepart)

		rec, _ := m.Get("김도윤")
		assert.True(t, rec.AlertedOverrun)
		assert.Equal(t, autoDepart, rec.CheckedOut)
	}
}

func TestOverrunPolicy(t *testing.T) {
	opts := DefaultOptions()
	opts.AutoDepart = false
	m := newTestManager(opts)
	m.Update(scrape.Snapshot{"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"}}, at(14, 0))

	assert.Empty(t, m.Sweep(at(15, 9)))
	assert.Equal(t, []string{"OVERRUN:김도윤"}, kinds(m.Sweep(at(15, 10))))
	assert.Empty(t, m.Sweep(at(15, 11)))

	active, departed := m.Order(at(15, 11))
	assert.Equal(t, []string{"김도윤"}, names(active))
	assert.Empty(t, departed)
	assert.Equal(t, -1, active[0].RemainingMinutes(at(15, 11)))

	// pushing the end time back out re-arms a new alert
	rec, err := m.Adjust("김도윤", 10, at(15, 12))
	require.NoError(t, err)
	assert.False(t, rec.AlertedOverrun)
	assert.Empty(t, m.Sweep(at(15, 15)))
	events := m.Sweep(at(15, 20))
	require.Len(t, events, 1)
	assert.Equal(t, at(15, 20), events[0].At)
}

func TestAutoDepartAtMostOnce(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialLoadSuppress = false
	m := newTestManager(opts)
	snap := scrape.Snapshot{"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"}}
	m.Reconcile(snap, at(14, 0))

	assert.Len(t, m.Sweep(at(15, 10)), 1)
	assert.Empty(t, m.Sweep(at(15, 11)))

	// the board later shows the real departure
	snap["김도윤"] = scrape.Entry{CheckedIn: true, CheckInTime: "오후 1:40", CheckedOut: true, CheckOutTime: "오후 3:15"}
	assert.Empty(t, m.Reconcile(snap, at(15, 16)))
	rec, _ := m.Get("김도윤")
	assert.True(t, rec.AutoCheckedOut)
	assert.Equal(t, at(15, 10), rec.CheckOut)
}

func TestAdjust(t *testing.T) {
	m := newTestManager(DefaultOptions())
	m.Update(scrape.Snapshot{
		"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"},
		"이서연": {CheckedIn: true, CheckInTime: "오후 1:00", CheckedOut: true, CheckOutTime: "오후 1:50"},
	}, at(14, 0))

	rec, err := m.Adjust("김도윤", 10, at(14, 1))
	require.NoError(t, err)
	assert.Equal(t, 100, rec.ClassMinutes)
	rec, err = m.Adjust("김도윤", -10, at(14, 1))
	require.NoError(t, err)
	assert.Equal(t, 90, rec.ClassMinutes)
	assert.Equal(t, at(15, 10), rec.End)

	tests := []struct {
		name  string
		delta int
		want  int
	}{
		{"clamps to max", 1000, 240},
		{"clamps to min", -1000, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := m.Adjust("김도윤", tt.delta, at(14, 1))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.ClassMinutes)
		})
	}

	_, err = m.Adjust("박민준", 10, at(14, 1))
	assert.ErrorIs(t, err, ErrUnknownStudent)
	_, err = m.Adjust("이서연", 10, at(14, 1))
	assert.ErrorIs(t, err, ErrDeparted)
}

func TestDepartedOrdering(t *testing.T) {
	opts := DefaultOptions()
	opts.InitialLoadSuppress = false
	m := newTestManager(opts)
	m.Reconcile(scrape.Snapshot{
		"다": {CheckedIn: true, CheckInTime: "오후 1:00", CheckedOut: true, CheckOutTime: "bad"},
		"나": {CheckedIn: true, CheckInTime: "오후 1:00", CheckedOut: true, CheckOutTime: "오후 2:00"},
		"가": {CheckedIn: true, CheckInTime: "오후 1:00", CheckedOut: true, CheckOutTime: "오후 2:00"},
		"라": {CheckedIn: true, CheckInTime: "오후 1:00", CheckedOut: true, CheckOutTime: "오후 1:30"},
	}, at(14, 10))

	_, departed := m.Order(at(14, 10))
	assert.Equal(t, []string{"라", "가", "나", "다"}, names(departed))
}

func TestActiveTiesBrokenByName(t *testing.T) {
	m := newTestManager(DefaultOptions())
	m.Update(scrape.Snapshot{
		"이서연": {CheckedIn: true, CheckInTime: "오후 1:40"},
		"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"},
	}, at(14, 0))
	active, _ := m.Order(at(14, 0))
	assert.Equal(t, []string{"김도윤", "이서연"}, names(active))
}

func TestOrderReturnsCopies(t *testing.T) {
	m := newTestManager(DefaultOptions())
	m.Update(scrape.Snapshot{"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"}}, at(14, 0))
	active, _ := m.Order(at(14, 0))
	active[0].ClassMinutes = 1
	rec, _ := m.Get("김도윤")
	assert.Equal(t, 90, rec.ClassMinutes)
}

func TestReset(t *testing.T) {
	m := newTestManager(DefaultOptions())
	snap := scrape.Snapshot{"김도윤": {CheckedIn: true, CheckInTime: "오후 1:40"}}
	m.Update(snap, at(14, 0))
	m.Reset()
	assert.Equal(t, 0, m.Len())

	// the next load is an initial load again
	res := m.Update(snap, at(14, 1))
	assert.Empty(t, res.Events)
	assert.Equal(t, 1, m.Len())
}
