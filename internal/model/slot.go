package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
)

// Slot is a bookable unit derived from an AvailabilityWindow at read time.
// It is never stored; booking state comes from the ledger.
type Slot struct {
	ID                   string     `json:"id"`
	ParentAvailabilityID string     `json:"parent_availability_id"`
	SlotIndex            int        `json:"slot_index"`
	TutorID              int64      `json:"tutor_id"`
	Course               string     `json:"course"`
	Location             string     `json:"location"`
	StartDateTime        time.Time  `json:"start_date_time"`
	EndDateTime          time.Time  `json:"end_date_time"`
	Status               SlotStatus `json:"status"`
	BookedBy             *int64     `json:"booked_by"`
	SessionID            *uuid.UUID `json:"session_id"`
}

func (s *Slot) IsBooked() bool {
	return s.Status == SlotStatusBooked
}

// Duration returns the slot length; the trailing slot of a window may be shorter than an hour.
func (s *Slot) Duration() time.Duration {
	return s.EndDateTime.Sub(s.StartDateTime)
}

// TutorSlots groups the slots offered by one tutor.
type TutorSlots struct {
	TutorID int64   `json:"tutor_id"`
	Slots   []*Slot `json:"slots"`
}
