package model

import "time"

type User struct {
	ID                  int64     `json:"id"`
	TelegramID          *int64    `json:"telegram_id"`
	Email               string    `json:"email"`
	Username            string    `json:"username"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	IsTutor             bool      `json:"is_tutor"`
	AutoApproveBookings bool      `json:"auto_approve_bookings"` // skip the pending state
	HourlyRate          int       `json:"hourly_rate"`           // in cents
	CalendarID          string    `json:"calendar_id"`
	CalendarToken       string    `json:"-"`
	CreatedAt           time.Time `json:"created_at"`
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// HasCalendar reports whether availability can be synced for the user.
func (u *User) HasCalendar() bool {
	return u.CalendarID != "" && u.CalendarToken != ""
}
