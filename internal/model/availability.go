package model

import "time"

// AvailabilityWindow is a block of free time a tutor opened in their calendar.
// ID is the id of the source calendar event.
type AvailabilityWindow struct {
	ID            string    `json:"id"`
	TutorID       int64     `json:"tutor_id"`
	Title         string    `json:"title"`
	Course        string    `json:"course"` // empty = derive from title
	Location      string    `json:"location"`
	StartDateTime time.Time `json:"start_date_time"`
	EndDateTime   time.Time `json:"end_date_time"`
	Recurring     bool      `json:"recurring"`
	CalendarID    string    `json:"calendar_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsValid reports whether the window has a positive length.
func (w *AvailabilityWindow) IsValid() bool {
	return w.EndDateTime.After(w.StartDateTime)
}
