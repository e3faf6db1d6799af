package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
)

// SlotDuration is the length of a full slot. The trailing slot of a window may be shorter.
const SlotDuration = time.Hour

const slotIDSeparator = "_slot_"

// SlotID builds the deterministic id of slot index inside availabilityID.
func SlotID(availabilityID string, index int) string {
	return availabilityID + slotIDSeparator + strconv.Itoa(index)
}

// ParseSlotID splits a slot id into its window id and index.
// Window ids may themselves contain underscores, so the last separator wins.
func ParseSlotID(id string) (string, int, error) {
	i := strings.LastIndex(id, slotIDSeparator)
	if i <= 0 {
		return "", 0, fmt.Errorf("%w: malformed slot id %q", ErrInvalidInput, id)
	}
	index, err := strconv.Atoi(id[i+len(slotIDSeparator):])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("%w: malformed slot index in %q", ErrInvalidInput, id)
	}
	return id[:i], index, nil
}

// GenerateSlots splits a window into one-hour slots covering [start, end).
// The result depends only on the window, so repeated calls yield identical slots.
func GenerateSlots(w *model.AvailabilityWindow) []*model.Slot {
	if w == nil || !w.IsValid() {
		return nil
	}

	duration := w.EndDateTime.Sub(w.StartDateTime)
	count := int((duration + SlotDuration - 1) / SlotDuration)
	course := ResolveCourse(w.Course, w.Title)

	slots := make([]*model.Slot, 0, count)
	for i := 0; i < count; i++ {
		start := w.StartDateTime.Add(time.Duration(i) * SlotDuration)
		end := start.Add(SlotDuration)
		if end.After(w.EndDateTime) {
			end = w.EndDateTime
		}
		if !end.After(start) {
			continue
		}

		slots = append(slots, &model.Slot{
			ID:                   SlotID(w.ID, i),
			ParentAvailabilityID: w.ID,
			SlotIndex:            i,
			TutorID:              w.TutorID,
			Course:               course,
			Location:             w.Location,
			StartDateTime:        start,
			EndDateTime:          end,
			Status:               model.SlotStatusAvailable,
		})
	}
	return slots
}

// GenerateSlotsFromAvailabilities concatenates the slots of every window in input order.
func GenerateSlotsFromAvailabilities(windows []*model.AvailabilityWindow) []*model.Slot {
	var slots []*model.Slot
	for _, w := range windows {
		slots = append(slots, GenerateSlots(w)...)
	}
	return slots
}

// findSlot regenerates w and returns the slot at index, or nil.
func findSlot(w *model.AvailabilityWindow, index int) *model.Slot {
	for _, s := range GenerateSlots(w) {
		if s.SlotIndex == index {
			return s
		}
	}
	return nil
}
