package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"go.uber.org/zap"
)

// JointAvailability merges the free slots of every tutor of a course.
type JointAvailability struct {
	store  repository.Store
	ledger *BookingLedger
	logger *zap.Logger
}

func NewJointAvailability(store repository.Store, ledger *BookingLedger, logger *zap.Logger) *JointAvailability {
	return &JointAvailability{
		store:  store,
		ledger: ledger,
		logger: logger,
	}
}

// dayBounds returns [00:00, next 00:00) of day's date in day's location.
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// GenerateJointSlotsForDay buckets the available slots starting on day by
// identical start instant. Buckets are ordered by start; tutors keep the
// order in which they were supplied and appear at most once per bucket.
func GenerateJointSlotsForDay(perTutor []model.TutorSlots, day time.Time) []*model.JointSlot {
	from, to := dayBounds(day)

	buckets := make(map[int64]*model.JointSlot)
	for _, ts := range perTutor {
		for _, slot := range ts.Slots {
			if slot == nil || slot.Status != model.SlotStatusAvailable {
				continue
			}
			if slot.StartDateTime.Before(from) || !slot.StartDateTime.Before(to) {
				continue
			}

			key := slot.StartDateTime.UnixNano()
			bucket, ok := buckets[key]
			if !ok {
				bucket = &model.JointSlot{
					Course:        slot.Course,
					StartDateTime: slot.StartDateTime,
					EndDateTime:   slot.EndDateTime,
				}
				buckets[key] = bucket
			}
			if hasTutor(bucket, ts.TutorID) {
				continue
			}

			bucket.Tutors = append(bucket.Tutors, model.JointTutor{
				TutorID:              ts.TutorID,
				SlotID:               slot.ID,
				ParentAvailabilityID: slot.ParentAvailabilityID,
				SlotIndex:            slot.SlotIndex,
				Location:             slot.Location,
				EndDateTime:          slot.EndDateTime,
			})
			// The bucket ends when the first of its tutors leaves.
			if slot.EndDateTime.Before(bucket.EndDateTime) {
				bucket.EndDateTime = slot.EndDateTime
			}
		}
	}

	out := make([]*model.JointSlot, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartDateTime.Before(out[j].StartDateTime)
	})
	return out
}

func hasTutor(bucket *model.JointSlot, tutorID int64) bool {
	for _, t := range bucket.Tutors {
		if t.TutorID == tutorID {
			return true
		}
	}
	return false
}

// JointSlotsForCourse aggregates the course's tutors for day. Booking state is
// read from the ledger right before aggregation.
func (j *JointAvailability) JointSlotsForCourse(ctx context.Context, course string, day time.Time) ([]*model.JointSlot, error) {
	course = strings.TrimSpace(course)
	if course == "" {
		return nil, fmt.Errorf("%w: course is required", ErrInvalidInput)
	}
	from, to := dayBounds(day)

	windows, err := j.store.Availability().ListByCourse(ctx, course, from, to)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}

	slots := GenerateSlotsFromAvailabilities(windows)
	if err := j.ledger.AnnotateSlots(ctx, slots); err != nil {
		return nil, err
	}

	var perTutor []model.TutorSlots
	index := make(map[int64]int)
	for _, s := range slots {
		i, ok := index[s.TutorID]
		if !ok {
			i = len(perTutor)
			index[s.TutorID] = i
			perTutor = append(perTutor, model.TutorSlots{TutorID: s.TutorID})
		}
		perTutor[i].Slots = append(perTutor[i].Slots, s)
	}

	joint := GenerateJointSlotsForDay(perTutor, day)
	for _, js := range joint {
		js.Course = course
	}

	j.logger.Debug("Joint availability computed",
		zap.String("course", course),
		zap.Time("day", from),
		zap.Int("tutors", len(perTutor)),
		zap.Int("buckets", len(joint)),
	)
	return joint, nil
}
