package session

import "time"

func NewRecord(name string, checkIn time.Time, classMinutes int) *Record {
	r := &Record{
		Name:    name,
		CheckIn: checkIn,
	}
	r.SetClassMinutes(classMinutes)
	return r
}

// SetClassMinutes changes the class length and recomputes the end time.
func (r *Record) SetClassMinutes(minutes int) {
	r.ClassMinutes = minutes
	r.End = r.CheckIn.Add(time.Duration(minutes) * time.Minute)
}

func (r *Record) IsActive() bool {
	return !r.CheckedOut
}

func (r *Record) Remaining(now time.Time) time.Duration {
	return r.End.Sub(now)
}

// RemainingMinutes is the whole number of minutes left, floored.
// Negative once the class has run over.
func (r *Record) RemainingMinutes(now time.Time) int {
	d := r.Remaining(now)
	m := int(d / time.Minute)
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return m
}

// Overrun reports whether an active record is past its end time.
func (r *Record) Overrun(now time.Time) bool {
	return r.IsActive() && !now.Before(r.End)
}

// Depart marks an observed departure. at may be zero when the board's
// departure time was unreadable.
func (r *Record) Depart(at time.Time) {
	r.CheckedOut = true
	r.CheckOut = at
}

// AutoDepart synthesises a departure at the scheduled end.
func (r *Record) AutoDepart() {
	r.CheckedOut = true
	r.AutoCheckedOut = true
	r.CheckOut = r.End
}
