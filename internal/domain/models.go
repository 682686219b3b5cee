package domain

import (
	"errors"
	"fmt"
	"time"
)

type MonitorID string

type Status string

const (
	StatusPolling Status = "polling"
	StatusFound   Status = "found"
	StatusNone    Status = "none"
	StatusError   Status = "error"
)

var (
	ErrInvalidPartySize = errors.New("party size must be positive")
	ErrInvalidDateRange = errors.New("end date must be the same as or after start date")
	ErrNoTimes          = errors.New("at least one time of interest is required")
	ErrInvalidTime      = errors.New("time must be HH:MM (24h) or h:MM AM/PM")
)

// Slot is one matched reservation opening.
type Slot struct {
	Date       string `json:"date"`    // YYYY-MM-DD
	Time24     string `json:"time_24"` // HH:MM
	Type       string `json:"type"`
	TimeFilter string `json:"time_filter,omitempty"`
	Image      string `json:"image,omitempty"`
}

// Monitor is a user-configured watch for availability at one venue.
// Identity and search fields are fixed at creation; the result fields
// (LastChecked, Status, StatusMsg, Error, FoundSlots, WebhookSent) belong
// to the checker.
type Monitor struct {
	ID        MonitorID `json:"id"`
	VenueID   string    `json:"venue_id"`
	VenueName string    `json:"venue_name"`
	URL       string    `json:"url"`
	PartySize int       `json:"party_size"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Times     []string  `json:"times_24"`
	CreatedAt time.Time `json:"created_at"`

	Active bool `json:"active"`

	LastChecked *time.Time `json:"last_checked"` // nil until the first check
	Status      Status     `json:"status"`
	StatusMsg   string     `json:"status_msg"`
	Error       string     `json:"error,omitempty"`
	FoundSlots  []Slot     `json:"found_slots"`

	OnlyOneWebhook bool `json:"only_one_webhook"`
	WebhookSent    bool `json:"webhook_sent"`
	StopOnMatch    bool `json:"stop_on_match"`
}

// Clone returns a copy that shares no mutable memory with m.
func (m *Monitor) Clone() Monitor {
	c := *m
	if m.Times != nil {
		c.Times = append([]string(nil), m.Times...)
	}
	if m.FoundSlots != nil {
		c.FoundSlots = append([]Slot(nil), m.FoundSlots...)
	}
	if m.LastChecked != nil {
		t := *m.LastChecked
		c.LastChecked = &t
	}
	return c
}

func (m *Monitor) Validate() error {
	if m.PartySize < 1 {
		return ErrInvalidPartySize
	}
	if m.EndDate.Before(m.StartDate) {
		return ErrInvalidDateRange
	}
	if len(m.Times) == 0 {
		return ErrNoTimes
	}
	for _, t := range m.Times {
		if _, err := time.Parse("15:04", t); err != nil || len(t) != 5 {
			return fmt.Errorf("%w: %q", ErrInvalidTime, t)
		}
	}
	return nil
}

// Due reports whether the monitor should be checked at now. A monitor that
// was never checked is always due.
func (m *Monitor) Due(now time.Time, interval time.Duration) bool {
	if m.LastChecked == nil {
		return true
	}
	return now.Sub(*m.LastChecked) >= interval
}

// NextCheckIn is the remaining wait before the monitor becomes due, never negative.
func (m *Monitor) NextCheckIn(now time.Time, interval time.Duration) time.Duration {
	if m.LastChecked == nil {
		return 0
	}
	remain := interval - now.Sub(*m.LastChecked)
	if remain < 0 {
		return 0
	}
	return remain
}

// MarkChecked stamps the monitor as checked at now.
func (m *Monitor) MarkChecked(now time.Time) {
	t := now
	m.LastChecked = &t
}
