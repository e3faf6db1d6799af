// Package calendar talks to the external calendar that tutors publish availability in.
package calendar

import (
	"context"
	"time"
)

// Event is a timed calendar entry.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Recurring   bool
	Attendees   []string
}

// Provider reads and writes a user's calendar. ownerToken is an OAuth access
// token for the calendar owner; refreshing it is the caller's concern.
type Provider interface {
	ListEvents(ctx context.Context, ownerToken, calendarID string, timeMin, timeMax time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, ownerToken, calendarID string, ev Event) (string, error)
	UpdateEvent(ctx context.Context, ownerToken, calendarID string, ev Event) error
	DeleteEvent(ctx context.Context, ownerToken, calendarID, eventID string) error
}
