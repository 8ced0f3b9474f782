package session

import "time"

// Record is the live state of one student for the current day.
type Record struct {
	Name         string    `json:"name"`
	CheckIn      time.Time `json:"check_in"`
	ClassMinutes int       `json:"class_minutes"`
	End          time.Time `json:"end"`

	CheckedOut     bool `json:"checked_out"`
	AutoCheckedOut bool `json:"auto_checked_out"`
	// CheckOut is zero when the departure time could not be parsed.
	CheckOut time.Time `json:"check_out,omitempty"`

	AlertedOverrun    bool `json:"alerted_overrun"`
	NotifiedArrival   bool `json:"notified_arrival"`
	NotifiedDeparture bool `json:"notified_departure"`
}
