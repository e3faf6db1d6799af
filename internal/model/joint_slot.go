package model

import "time"

// JointSlot collects every tutor free at the same start time.
type JointSlot struct {
	Course        string       `json:"course,omitempty"`
	StartDateTime time.Time    `json:"start_date_time"`
	EndDateTime   time.Time    `json:"end_date_time"`
	Tutors        []JointTutor `json:"tutors"`
}

// JointTutor is one tutor's slot inside a JointSlot.
type JointTutor struct {
	TutorID              int64     `json:"tutor_id"`
	SlotID               string    `json:"slot_id"`
	ParentAvailabilityID string    `json:"parent_availability_id"`
	SlotIndex            int       `json:"slot_index"`
	Location             string    `json:"location"`
	EndDateTime          time.Time `json:"end_date_time"`
}

func (j *JointSlot) TutorIDs() []int64 {
	ids := make([]int64, 0, len(j.Tutors))
	for _, t := range j.Tutors {
		ids = append(ids, t.TutorID)
	}
	return ids
}
