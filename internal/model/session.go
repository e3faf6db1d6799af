package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"   // waiting for the tutor
	SessionStatusScheduled SessionStatus = "scheduled" // accepted or auto-approved
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusDeclined  SessionStatus = "declined" // rejected by the tutor
)

type ApprovalStatus string

const (
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalDeclined    ApprovalStatus = "declined"
	ApprovalNotRequired ApprovalStatus = "not_required"
)

// Session is a tutoring appointment. Sessions are never deleted.
type Session struct {
	ID                   uuid.UUID      `json:"id"`
	TutorID              int64          `json:"tutor_id"`
	StudentID            int64          `json:"student_id"`
	Course               string         `json:"course"`
	ScheduledStart       time.Time      `json:"scheduled_start"`
	ScheduledEnd         time.Time      `json:"scheduled_end"`
	Location             string         `json:"location"`
	Status               SessionStatus  `json:"status"`
	TutorApprovalStatus  ApprovalStatus `json:"tutor_approval_status"`
	Notes                string         `json:"notes"`
	Price                int            `json:"price"` // in cents
	ParentAvailabilityID string         `json:"parent_availability_id"`
	SlotIndex            int            `json:"slot_index"`
	CalendarEventID      *string        `json:"calendar_event_id"`

	CancelledBy        *int64     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	DeclineReason      string     `json:"decline_reason,omitempty"`
	RescheduleReason   string     `json:"reschedule_reason,omitempty"`
	RescheduledAt      *time.Time `json:"rescheduled_at,omitempty"`
	Rating             *int       `json:"rating,omitempty"`
	ReviewComment      string     `json:"review_comment,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HoldsSlot reports whether the session must own a BookingRecord.
func (s *Session) HoldsSlot() bool {
	return s.Status == SessionStatusPending || s.Status == SessionStatusScheduled
}

// IsParticipant reports whether userID is the tutor or the student of the session.
func (s *Session) IsParticipant(userID int64) bool {
	return s.TutorID == userID || s.StudentID == userID
}

// Counterpart returns the other participant for userID.
func (s *Session) Counterpart(userID int64) int64 {
	if userID == s.TutorID {
		return s.StudentID
	}
	return s.TutorID
}

func (s *Session) SlotKey() SlotKey {
	return SlotKey{ParentAvailabilityID: s.ParentAvailabilityID, SlotIndex: s.SlotIndex}
}
