package service

import (
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tutorSlots(tutorID int64, windows ...*model.AvailabilityWindow) model.TutorSlots {
	return model.TutorSlots{TutorID: tutorID, Slots: GenerateSlotsFromAvailabilities(windows)}
}

func TestGenerateJointSlotsForDay_Buckets(t *testing.T) {
	a := tutorSlots(1,
		window("a-morning", 1, at(10, 0), time.Hour),
		window("a-afternoon", 1, at(14, 0), time.Hour),
	)
	b := tutorSlots(2, window("b-morning", 2, at(10, 0), time.Hour))

	joint := GenerateJointSlotsForDay([]model.TutorSlots{a, b}, day)

	require.Len(t, joint, 2)
	assert.Equal(t, at(10, 0), joint[0].StartDateTime)
	assert.Equal(t, []int64{1, 2}, joint[0].TutorIDs())
	assert.Equal(t, at(14, 0), joint[1].StartDateTime)
	assert.Equal(t, []int64{1}, joint[1].TutorIDs())
	assert.Equal(t, "a-afternoon_slot_0", joint[1].Tutors[0].SlotID)
}

func TestGenerateJointSlotsForDay_TutorOrderFollowsInput(t *testing.T) {
	a := tutorSlots(1, window("a", 1, at(10, 0), time.Hour))
	b := tutorSlots(2, window("b", 2, at(10, 0), time.Hour))

	joint := GenerateJointSlotsForDay([]model.TutorSlots{b, a}, day)

	require.Len(t, joint, 1)
	assert.Equal(t, []int64{2, 1}, joint[0].TutorIDs())
}

func TestGenerateJointSlotsForDay_Filters(t *testing.T) {
	a := tutorSlots(1,
		window("yesterday", 1, at(-2, 0), time.Hour),
		window("today", 1, at(8, 0), 2*time.Hour),
		window("tomorrow", 1, at(24, 0), time.Hour),
		window("overlap", 1, at(8, 0), time.Hour),
	)
	a.Slots[1].Status = model.SlotStatusBooked // today 08:00

	joint := GenerateJointSlotsForDay([]model.TutorSlots{a}, day)

	require.Len(t, joint, 2)
	assert.Equal(t, at(8, 0), joint[0].StartDateTime)
	require.Len(t, joint[0].Tutors, 1, "a tutor appears once per bucket")
	assert.Equal(t, "overlap_slot_0", joint[0].Tutors[0].SlotID)
	assert.Equal(t, at(9, 0), joint[1].StartDateTime)
}

func TestGenerateJointSlotsForDay_UsesDayLocation(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	// 02:00 UTC on the 16th is still the 15th in Bogotá.
	a := tutorSlots(1, window("late", 1, at(26, 0), time.Hour))

	assert.Empty(t, GenerateJointSlotsForDay([]model.TutorSlots{a}, day))
	assert.Len(t, GenerateJointSlotsForDay([]model.TutorSlots{a}, time.Date(2024, 1, 15, 12, 0, 0, 0, bogota)), 1)
}

func TestGenerateJointSlotsForDay_EndIsEarliestTutorEnd(t *testing.T) {
	a := tutorSlots(1, window("a", 1, at(10, 0), time.Hour))
	b := tutorSlots(2, window("b", 2, at(10, 0), 20*time.Minute))

	joint := GenerateJointSlotsForDay([]model.TutorSlots{a, b}, day)

	require.Len(t, joint, 1)
	assert.Equal(t, at(10, 20), joint[0].EndDateTime)
	assert.Equal(t, at(11, 0), joint[0].Tutors[0].EndDateTime)
}

func TestJointSlotsForCourse_ReadsLedger(t *testing.T) {
	f := newFixture(t)
	tutorB := f.addUser(t, &model.User{Email: "marta@example.com", IsTutor: true})
	f.addWindow(t, "a-morning", f.tutor.ID, at(10, 0), time.Hour)
	f.addWindow(t, "a-afternoon", f.tutor.ID, at(14, 0), time.Hour)
	f.addWindow(t, "b-morning", tutorB.ID, at(10, 0), time.Hour)
	physics := f.addWindow(t, "b-physics", tutorB.ID, at(14, 0), time.Hour)
	physics.Title = "FISI1018"
	physics.Course = "FISI1018"
	require.NoError(t, f.store.Availability().Upsert(f.ctx, physics))

	joint := NewJointAvailability(f.store, f.ledger, zap.NewNop())

	slots, err := joint.JointSlotsForCourse(f.ctx, "ISIS3710", day)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, []int64{f.tutor.ID, tutorB.ID}, slots[0].TutorIDs())
	assert.Equal(t, []int64{f.tutor.ID}, slots[1].TutorIDs())
	assert.Equal(t, "ISIS3710", slots[0].Course)

	f.book(t, "b-morning", 0, f.student)

	slots, err = joint.JointSlotsForCourse(f.ctx, "ISIS3710", day)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, []int64{f.tutor.ID}, slots[0].TutorIDs(), "booked slots drop out immediately")

	_, err = joint.JointSlotsForCourse(f.ctx, " ", day)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
