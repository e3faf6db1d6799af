package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/calendar"
	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSyncWorkers = 4

// AvailabilityService mirrors tutors' calendars into availability windows and
// serves the slots derived from them.
type AvailabilityService struct {
	store    repository.Store
	ledger   *BookingLedger
	provider calendar.Provider
	timeout  time.Duration
	workers  int
	logger   *zap.Logger
}

func NewAvailabilityService(
	store repository.Store,
	ledger *BookingLedger,
	provider calendar.Provider,
	timeout time.Duration,
	logger *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		store:    store,
		ledger:   ledger,
		provider: provider,
		timeout:  timeout,
		workers:  defaultSyncWorkers,
		logger:   logger,
	}
}

type SyncReport struct {
	TutorID  int64 `json:"tutor_id"`
	Upserted int   `json:"upserted"`
	Deleted  int   `json:"deleted"`
	Skipped  int   `json:"skipped"`
	// Conflicts counts events that moved under a booked slot. Their stored
	// window is left as it was until the booking is cancelled or moved.
	Conflicts int `json:"conflicts"`
}

type SyncSummary struct {
	Tutors int `json:"tutors"`
	Failed int `json:"failed"`
}

// SyncTutor imports the tutor's calendar events in [from, to) as availability
// windows and removes windows whose event disappeared.
func (s *AvailabilityService) SyncTutor(ctx context.Context, tutorID int64, from, to time.Time) (*SyncReport, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty sync range", ErrInvalidInput)
	}

	tutor, err := s.store.Users().GetByID(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get tutor: %w", err)
	}
	if tutor == nil || !tutor.IsTutor {
		return nil, fmt.Errorf("%w: tutor %d", ErrUserNotFound, tutorID)
	}
	if !tutor.HasCalendar() {
		return nil, fmt.Errorf("%w: tutor %d has no calendar connected", ErrInvalidInput, tutorID)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	events, err := s.provider.ListEvents(callCtx, tutor.CalendarToken, tutor.CalendarID, from, to)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	report := &SyncReport{TutorID: tutorID}
	var windows []*model.AvailabilityWindow
	for _, ev := range events {
		if ev.AllDay || !ev.End.After(ev.Start) {
			report.Skipped++
			continue
		}
		windows = append(windows, windowFromEvent(tutor, ev))
	}

	held, err := s.heldRecords(ctx, windows)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(windows))
	for _, w := range windows {
		seen[w.ID] = true

		if moved := movedBookings(w, held[w.ID]); len(moved) > 0 {
			for _, b := range moved {
				s.logger.Warn("Calendar event moved under a booked slot",
					zap.String("availability_id", w.ID),
					zap.Int("slot_index", b.SlotIndex),
					zap.Time("booked_start", b.SlotStartTime),
					zap.String("session_id", b.SessionID.String()),
				)
			}
			report.Conflicts++
			continue
		}

		if err := s.store.Availability().Upsert(ctx, w); err != nil {
			return nil, fmt.Errorf("upsert availability: %w", err)
		}
		report.Upserted++
	}

	stored, err := s.store.Availability().ListByTutor(ctx, tutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}

	var stale []string
	for _, w := range stored {
		if !seen[w.ID] {
			stale = append(stale, w.ID)
		}
	}
	if len(stale) > 0 {
		held, err := s.store.Bookings().ListByAvailabilityIDs(ctx, stale)
		if err != nil {
			return nil, fmt.Errorf("list bookings: %w", err)
		}
		for _, b := range held {
			s.logger.Warn("Removed availability still holds a booking",
				zap.String("availability_id", b.ParentAvailabilityID),
				zap.Int("slot_index", b.SlotIndex),
				zap.String("session_id", b.SessionID.String()),
			)
		}
		for _, id := range stale {
			if err := s.store.Availability().Delete(ctx, id); err != nil {
				return nil, fmt.Errorf("delete availability: %w", err)
			}
			report.Deleted++
		}
	}

	s.logger.Info("Calendar synced",
		zap.Int64("tutor_id", tutorID),
		zap.Int("upserted", report.Upserted),
		zap.Int("deleted", report.Deleted),
		zap.Int("skipped", report.Skipped),
		zap.Int("conflicts", report.Conflicts),
	)
	return report, nil
}

func (s *AvailabilityService) heldRecords(ctx context.Context, windows []*model.AvailabilityWindow) (map[string][]*model.BookingRecord, error) {
	ids := make([]string, 0, len(windows))
	for _, w := range windows {
		ids = append(ids, w.ID)
	}

	records, err := s.store.Bookings().ListByAvailabilityIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	held := make(map[string][]*model.BookingRecord)
	for _, r := range records {
		held[r.ParentAvailabilityID] = append(held[r.ParentAvailabilityID], r)
	}
	return held, nil
}

// movedBookings returns the records whose slot would cover a different time
// range once w replaces the stored window.
func movedBookings(w *model.AvailabilityWindow, records []*model.BookingRecord) []*model.BookingRecord {
	var moved []*model.BookingRecord
	for _, r := range records {
		slot := findSlot(w, r.SlotIndex)
		if slot == nil || !slot.StartDateTime.Equal(r.SlotStartTime) || !slot.EndDateTime.Equal(r.SlotEndTime) {
			moved = append(moved, r)
		}
	}
	return moved
}

// SyncAll syncs every tutor with a calendar. A failing tutor is logged and counted.
func (s *AvailabilityService) SyncAll(ctx context.Context, from, to time.Time) (*SyncSummary, error) {
	tutors, err := s.store.Users().ListTutors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}

	var (
		summary SyncSummary
		failed  atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, tutor := range tutors {
		if !tutor.HasCalendar() {
			continue
		}
		summary.Tutors++

		tutorID := tutor.ID
		g.Go(func() error {
			if _, err := s.SyncTutor(gctx, tutorID, from, to); err != nil {
				failed.Add(1)
				s.logger.Error("Calendar sync failed",
					zap.Int64("tutor_id", tutorID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Failed = int(failed.Load())
	return &summary, ctx.Err()
}

// TutorSlots returns the tutor's slots starting in [from, to) with booking state.
func (s *AvailabilityService) TutorSlots(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.Slot, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty range", ErrInvalidInput)
	}

	windows, err := s.store.Availability().ListByTutor(ctx, tutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}

	var slots []*model.Slot
	for _, slot := range GenerateSlotsFromAvailabilities(windows) {
		if slot.StartDateTime.Before(from) || !slot.StartDateTime.Before(to) {
			continue
		}
		slots = append(slots, slot)
	}

	if err := s.ledger.AnnotateSlots(ctx, slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// ResolveSlot rebuilds a slot from its id with current booking state.
func (s *AvailabilityService) ResolveSlot(ctx context.Context, slotID string) (*model.Slot, error) {
	availabilityID, index, err := ParseSlotID(slotID)
	if err != nil {
		return nil, err
	}

	w, err := s.store.Availability().GetByID(ctx, availabilityID)
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	if w == nil {
		return nil, fmt.Errorf("%w: %s", ErrAvailabilityNotFound, availabilityID)
	}

	slot := findSlot(w, index)
	if slot == nil {
		return nil, fmt.Errorf("%w: no slot %d in availability %s", ErrSlotUnavailable, index, availabilityID)
	}

	if err := s.ledger.AnnotateSlots(ctx, []*model.Slot{slot}); err != nil {
		return nil, err
	}
	return slot, nil
}

func windowFromEvent(tutor *model.User, ev calendar.Event) *model.AvailabilityWindow {
	return &model.AvailabilityWindow{
		ID:            ev.ID,
		TutorID:       tutor.ID,
		Title:         ev.Title,
		Course:        ResolveCourse("", ev.Title),
		Location:      ev.Location,
		StartDateTime: ev.Start,
		EndDateTime:   ev.End,
		Recurring:     ev.Recurring,
		CalendarID:    tutor.CalendarID,
	}
}
