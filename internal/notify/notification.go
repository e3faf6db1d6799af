// Package notify delivers session lifecycle events to users and to other services.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSessionPending     Kind = "session.pending"
	KindSessionScheduled   Kind = "session.scheduled"
	KindSessionAccepted    Kind = "session.accepted"
	KindSessionDeclined    Kind = "session.declined"
	KindSessionCancelled   Kind = "session.cancelled"
	KindSessionRescheduled Kind = "session.rescheduled"
	KindSessionCompleted   Kind = "session.completed"
)

type Role string

const (
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
)

// Recipient is a user who should hear about a notification.
type Recipient struct {
	UserID     int64  `json:"user_id"`
	Role       Role   `json:"role"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

type Notification struct {
	Kind        Kind        `json:"kind"`
	SessionID   uuid.UUID   `json:"session_id"`
	Course      string      `json:"course"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Location    string      `json:"location,omitempty"`
	TutorName   string      `json:"tutor_name"`
	StudentName string      `json:"student_name"`
	Reason      string      `json:"reason,omitempty"`
	Recipients  []Recipient `json:"recipients"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// Notifier is a notification sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subject returns a one-line summary of the notification.
func (n Notification) Subject() string {
	switch n.Kind {
	case KindSessionPending:
		return fmt.Sprintf("New booking request for %s", n.Course)
	case KindSessionScheduled:
		return fmt.Sprintf("Session booked: %s", n.Course)
	case KindSessionAccepted:
		return fmt.Sprintf("Session confirmed: %s", n.Course)
	case KindSessionDeclined:
		return fmt.Sprintf("Booking declined: %s", n.Course)
	case KindSessionCancelled:
		return fmt.Sprintf("Session cancelled: %s", n.Course)
	case KindSessionRescheduled:
		return fmt.Sprintf("Session rescheduled: %s", n.Course)
	case KindSessionCompleted:
		return fmt.Sprintf("Session completed: %s", n.Course)
	default:
		return string(n.Kind)
	}
}

// Text renders the notification body with times shown in loc.
func (n Notification) Text(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	b.WriteString(n.Subject())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Tutor: %s\n", n.TutorName)
	fmt.Fprintf(&b, "Student: %s\n", n.StudentName)
	fmt.Fprintf(&b, "When: %s - %s\n",
		n.Start.In(loc).Format("Mon 02 Jan 2006 15:04"),
		n.End.In(loc).Format("15:04"),
	)
	if n.Location != "" {
		fmt.Fprintf(&b, "Where: %s\n", n.Location)
	}
	if n.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", n.Reason)
	}
	return b.String()
}
