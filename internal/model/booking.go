package model

import (
	"time"

	"github.com/google/uuid"
)

// BookingRecord is the durable claim on one (ParentAvailabilityID, SlotIndex) pair.
// At most one record may exist per pair.
type BookingRecord struct {
	ID                   uuid.UUID `json:"id"`
	ParentAvailabilityID string    `json:"parent_availability_id"`
	SlotIndex            int       `json:"slot_index"`
	TutorID              int64     `json:"tutor_id"`
	TutorEmail           string    `json:"tutor_email"`
	StudentID            int64     `json:"student_id"`
	StudentEmail         string    `json:"student_email"`
	SessionID            uuid.UUID `json:"session_id"`
	SlotStartTime        time.Time `json:"slot_start_time"`
	SlotEndTime          time.Time `json:"slot_end_time"`
	Course               string    `json:"course"`
	BookedAt             time.Time `json:"booked_at"`
}

// SlotKey identifies a slot inside the ledger.
type SlotKey struct {
	ParentAvailabilityID string
	SlotIndex            int
}

func (b *BookingRecord) Key() SlotKey {
	return SlotKey{ParentAvailabilityID: b.ParentAvailabilityID, SlotIndex: b.SlotIndex}
}
