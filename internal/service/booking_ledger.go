package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingLedger owns BookingRecords. At most one record exists per slot; the
// storage layer's unique index decides concurrent claims.
type BookingLedger struct {
	store  repository.Store
	now    func() time.Time
	logger *zap.Logger
}

func NewBookingLedger(store repository.Store, logger *zap.Logger) *BookingLedger {
	return &BookingLedger{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the ledger clock. Services built on the ledger share it.
func (l *BookingLedger) WithClock(now func() time.Time) *BookingLedger {
	l.now = now
	return l
}

type ClaimRequest struct {
	Slot      *model.Slot
	StudentID int64
	Notes     string
	Course    string // overrides the slot course when set
	// ActorID is who asks for the booking: the student, or the slot's tutor
	// booking on the student's behalf, which skips approval. Zero means the student.
	ActorID int64
}

type ClaimResult struct {
	Booking *model.BookingRecord
	Session *model.Session
}

// ClaimSlot books slot for the student and creates its session in one transaction.
func (l *BookingLedger) ClaimSlot(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	if req.Slot == nil || req.StudentID <= 0 {
		return nil, fmt.Errorf("%w: slot and student are required", ErrInvalidInput)
	}
	// Cheap check on the caller's view; the ledger is consulted again below.
	if req.Slot.IsBooked() {
		return nil, ErrSlotAlreadyBooked
	}

	var result *ClaimResult
	err := l.store.WithTx(ctx, func(tx repository.Tx) error {
		slot, err := l.resolveSlotInTx(ctx, tx, req.Slot.ParentAvailabilityID, req.Slot.SlotIndex)
		if err != nil {
			return err
		}

		tutor, student, err := participantsInTx(ctx, tx, slot.TutorID, req.StudentID)
		if err != nil {
			return err
		}
		if tutor.ID == student.ID {
			return fmt.Errorf("%w: tutors cannot book their own slots", ErrInvalidInput)
		}
		byTutor := req.ActorID == tutor.ID
		if req.ActorID != 0 && req.ActorID != student.ID && !byTutor {
			return ErrUnauthorized
		}

		if err := ensureFreeInTx(ctx, tx, slot.ParentAvailabilityID, slot.SlotIndex); err != nil {
			return err
		}

		requiresApproval := !tutor.AutoApproveBookings && !byTutor
		session := newSession(slot, tutor, student, req, requiresApproval)
		if err := tx.Sessions().Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		record, err := insertRecordInTx(ctx, tx, slot, tutor, student, session)
		if err != nil {
			return err
		}

		result = &ClaimResult{Booking: record, Session: session}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Slot claimed",
		zap.String("slot_id", SlotID(result.Booking.ParentAvailabilityID, result.Booking.SlotIndex)),
		zap.String("session_id", result.Session.ID.String()),
		zap.Int64("tutor_id", result.Session.TutorID),
		zap.Int64("student_id", result.Session.StudentID),
		zap.String("status", string(result.Session.Status)),
	)

	return result, nil
}

// ReleaseSlot deletes the record for the slot if it still belongs to sessionID.
func (l *BookingLedger) ReleaseSlot(ctx context.Context, availabilityID string, slotIndex int, sessionID uuid.UUID) error {
	return releaseInTx(ctx, l.store, availabilityID, slotIndex, sessionID)
}

func (l *BookingLedger) IsSlotBooked(ctx context.Context, availabilityID string, slotIndex int) (bool, error) {
	rec, err := l.store.Bookings().GetBySlot(ctx, availabilityID, slotIndex)
	if err != nil {
		return false, fmt.Errorf("get booking: %w", err)
	}
	return rec != nil, nil
}

// AnnotateSlots sets the booking state of freshly generated slots from the ledger.
func (l *BookingLedger) AnnotateSlots(ctx context.Context, slots []*model.Slot) error {
	return annotateSlots(ctx, l.store.Bookings(), slots)
}

func annotateSlots(ctx context.Context, bookings repository.BookingStore, slots []*model.Slot) error {
	if len(slots) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var parents []string
	for _, s := range slots {
		if !seen[s.ParentAvailabilityID] {
			seen[s.ParentAvailabilityID] = true
			parents = append(parents, s.ParentAvailabilityID)
		}
	}

	records, err := bookings.ListByAvailabilityIDs(ctx, parents)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	byKey := make(map[model.SlotKey]*model.BookingRecord, len(records))
	for _, r := range records {
		byKey[r.Key()] = r
	}

	for _, s := range slots {
		rec, ok := byKey[model.SlotKey{ParentAvailabilityID: s.ParentAvailabilityID, SlotIndex: s.SlotIndex}]
		if !ok {
			s.Status = model.SlotStatusAvailable
			s.BookedBy = nil
			s.SessionID = nil
			continue
		}
		studentID, sessionID := rec.StudentID, rec.SessionID
		s.Status = model.SlotStatusBooked
		s.BookedBy = &studentID
		s.SessionID = &sessionID
	}
	return nil
}

// resolveSlotInTx regenerates the slot from its stored window so callers
// cannot book times the tutor never offered.
func (l *BookingLedger) resolveSlotInTx(ctx context.Context, tx repository.Tx, availabilityID string, slotIndex int) (*model.Slot, error) {
	w, err := tx.Availability().GetByID(ctx, availabilityID)
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	if w == nil {
		return nil, fmt.Errorf("%w: availability %s no longer exists", ErrSlotUnavailable, availabilityID)
	}

	slot := findSlot(w, slotIndex)
	if slot == nil {
		return nil, fmt.Errorf("%w: no slot %d in availability %s", ErrSlotUnavailable, slotIndex, availabilityID)
	}
	if !slot.StartDateTime.After(l.now()) {
		return nil, fmt.Errorf("%w: slot already started", ErrSlotUnavailable)
	}
	return slot, nil
}

func participantsInTx(ctx context.Context, tx repository.Tx, tutorID, studentID int64) (*model.User, *model.User, error) {
	tutor, err := tx.Users().GetByID(ctx, tutorID)
	if err != nil {
		return nil, nil, fmt.Errorf("get tutor: %w", err)
	}
	if tutor == nil {
		return nil, nil, fmt.Errorf("%w: tutor %d", ErrUserNotFound, tutorID)
	}

	student, err := tx.Users().GetByID(ctx, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return nil, nil, fmt.Errorf("%w: student %d", ErrUserNotFound, studentID)
	}
	return tutor, student, nil
}

func ensureFreeInTx(ctx context.Context, tx repository.Tx, availabilityID string, slotIndex int) error {
	existing, err := tx.Bookings().GetBySlot(ctx, availabilityID, slotIndex)
	if err != nil {
		return fmt.Errorf("get booking: %w", err)
	}
	if existing != nil {
		return ErrSlotAlreadyBooked
	}
	return nil
}

func insertRecordInTx(ctx context.Context, tx repository.Tx, slot *model.Slot, tutor, student *model.User, session *model.Session) (*model.BookingRecord, error) {
	record := &model.BookingRecord{
		ID:                   uuid.New(),
		ParentAvailabilityID: slot.ParentAvailabilityID,
		SlotIndex:            slot.SlotIndex,
		TutorID:              tutor.ID,
		TutorEmail:           tutor.Email,
		StudentID:            student.ID,
		StudentEmail:         student.Email,
		SessionID:            session.ID,
		SlotStartTime:        slot.StartDateTime,
		SlotEndTime:          slot.EndDateTime,
		Course:               session.Course,
	}

	err := tx.Bookings().Insert(ctx, record)
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrSlotAlreadyBooked
	}
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return record, nil
}

func releaseInTx(ctx context.Context, tx repository.Tx, availabilityID string, slotIndex int, sessionID uuid.UUID) error {
	if _, err := tx.Bookings().DeleteBySlot(ctx, availabilityID, slotIndex, sessionID); err != nil {
		return fmt.Errorf("release booking: %w", err)
	}
	return nil
}

func priceFor(tutor *model.User, slot *model.Slot) int {
	return int(int64(tutor.HourlyRate) * int64(slot.Duration()) / int64(time.Hour))
}
