package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/calendar"
	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/notify"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy holds the tunable rules of the session lifecycle.
type Policy struct {
	// CancelLeadTime is how long before the start a session can still be cancelled.
	CancelLeadTime time.Duration
	// RequireEndedBeforeComplete rejects completion before the scheduled end.
	RequireEndedBeforeComplete bool
	// ExternalTimeout bounds every calendar call.
	ExternalTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		CancelLeadTime:             2 * time.Hour,
		RequireEndedBeforeComplete: true,
		ExternalTimeout:            10 * time.Second,
	}
}

type dispatcher interface {
	Dispatch(n notify.Notification)
}

// TransitionResult is a successful transition plus any absorbed external failures.
type TransitionResult struct {
	Session  *model.Session       `json:"session"`
	Booking  *model.BookingRecord `json:"booking,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}

func (r *TransitionResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

type SessionService struct {
	store    repository.Store
	ledger   *BookingLedger
	calendar calendar.Provider
	notifier dispatcher
	policy   Policy
	logger   *zap.Logger
}

// NewSessionService creates the lifecycle service. provider and notifier may be nil.
func NewSessionService(
	store repository.Store,
	ledger *BookingLedger,
	provider calendar.Provider,
	notifier dispatcher,
	policy Policy,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		store:    store,
		ledger:   ledger,
		calendar: provider,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
	}
}

// initialState is the create transition.
func initialState(requiresApproval bool) (model.SessionStatus, model.ApprovalStatus) {
	if requiresApproval {
		return model.SessionStatusPending, model.ApprovalPending
	}
	return model.SessionStatusScheduled, model.ApprovalNotRequired
}

func newSession(slot *model.Slot, tutor, student *model.User, req ClaimRequest, requiresApproval bool) *model.Session {
	status, approval := initialState(requiresApproval)

	course := req.Course
	if course == "" {
		course = slot.Course
	}

	return &model.Session{
		ID:                   uuid.New(),
		TutorID:              tutor.ID,
		StudentID:            student.ID,
		Course:               course,
		ScheduledStart:       slot.StartDateTime,
		ScheduledEnd:         slot.EndDateTime,
		Location:             slot.Location,
		Status:               status,
		TutorApprovalStatus:  approval,
		Notes:                req.Notes,
		Price:                priceFor(tutor, slot),
		ParentAvailabilityID: slot.ParentAvailabilityID,
		SlotIndex:            slot.SlotIndex,
	}
}

type BookInput struct {
	Slot      *model.Slot
	StudentID int64
	ActorID   int64 // the student, or the slot's tutor booking on the student's behalf
	Notes     string
	Course    string
}

// Book claims a slot and announces the new session.
func (s *SessionService) Book(ctx context.Context, in BookInput) (*TransitionResult, error) {
	if in.Slot == nil {
		return nil, fmt.Errorf("%w: slot is required", ErrInvalidInput)
	}
	if in.StudentID == 0 {
		in.StudentID = in.ActorID
	}

	claim, err := s.ledger.ClaimSlot(ctx, ClaimRequest{
		Slot:      in.Slot,
		StudentID: in.StudentID,
		Notes:     in.Notes,
		Course:    in.Course,
		ActorID:   in.ActorID,
	})
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{Session: claim.Session, Booking: claim.Booking}
	kind := notify.KindSessionPending
	if claim.Session.Status == model.SessionStatusScheduled {
		kind = notify.KindSessionScheduled
		s.createCalendarEvent(ctx, result)
	}
	s.notify(ctx, kind, result.Session, "", result.Session.TutorID, result.Session.StudentID)

	return result, nil
}

// Accept confirms a pending session.
func (s *SessionService) Accept(ctx context.Context, sessionID uuid.UUID, tutorID int64) (*TransitionResult, error) {
	sess, err := s.transition(ctx, sessionID, func(_ repository.Tx, sess *model.Session) error {
		if sess.TutorID != tutorID {
			return ErrUnauthorized
		}
		if sess.Status != model.SessionStatusPending {
			return fmt.Errorf("%w: cannot accept a %s session", ErrInvalidStateTransition, sess.Status)
		}
		sess.Status = model.SessionStatusScheduled
		sess.TutorApprovalStatus = model.ApprovalApproved
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session accepted",
		zap.String("session_id", sessionID.String()),
		zap.Int64("tutor_id", tutorID),
	)

	result := &TransitionResult{Session: sess}
	s.createCalendarEvent(ctx, result)
	s.notify(ctx, notify.KindSessionAccepted, result.Session, "", sess.StudentID)
	return result, nil
}

// Decline rejects a pending session and frees its slot.
func (s *SessionService) Decline(ctx context.Context, sessionID uuid.UUID, tutorID int64, reason string) (*TransitionResult, error) {
	sess, err := s.transition(ctx, sessionID, func(tx repository.Tx, sess *model.Session) error {
		if sess.TutorID != tutorID {
			return ErrUnauthorized
		}
		if sess.Status != model.SessionStatusPending {
			return fmt.Errorf("%w: cannot decline a %s session", ErrInvalidStateTransition, sess.Status)
		}
		sess.Status = model.SessionStatusDeclined
		sess.TutorApprovalStatus = model.ApprovalDeclined
		sess.DeclineReason = reason
		return releaseInTx(ctx, tx, sess.ParentAvailabilityID, sess.SlotIndex, sess.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session declined",
		zap.String("session_id", sessionID.String()),
		zap.Int64("tutor_id", tutorID),
	)

	s.notify(ctx, notify.KindSessionDeclined, sess, reason, sess.StudentID)
	return &TransitionResult{Session: sess}, nil
}

// Cancel cancels a pending or scheduled session outside the lead time and frees its slot.
func (s *SessionService) Cancel(ctx context.Context, sessionID uuid.UUID, actorID int64, reason string) (*TransitionResult, error) {
	var eventID *string
	sess, err := s.transition(ctx, sessionID, func(tx repository.Tx, sess *model.Session) error {
		if !sess.IsParticipant(actorID) {
			return ErrUnauthorized
		}
		if !sess.HoldsSlot() {
			return fmt.Errorf("%w: cannot cancel a %s session", ErrInvalidStateTransition, sess.Status)
		}

		now := s.ledger.now()
		if sess.ScheduledStart.Sub(now) <= s.policy.CancelLeadTime {
			return fmt.Errorf("%w: sessions can be cancelled up to %s before the start",
				ErrTooLateToCancel, s.policy.CancelLeadTime)
		}

		eventID = sess.CalendarEventID
		sess.Status = model.SessionStatusCancelled
		sess.CancelledBy = &actorID
		sess.CancellationReason = reason
		sess.CancelledAt = &now
		return releaseInTx(ctx, tx, sess.ParentAvailabilityID, sess.SlotIndex, sess.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session cancelled",
		zap.String("session_id", sessionID.String()),
		zap.Int64("cancelled_by", actorID),
	)

	result := &TransitionResult{Session: sess}
	s.deleteCalendarEvent(ctx, result, eventID)
	s.notify(ctx, notify.KindSessionCancelled, sess, reason, sess.Counterpart(actorID))
	return result, nil
}

type RescheduleInput struct {
	SessionID uuid.UUID
	ActorID   int64
	NewSlot   *model.Slot
	Reason    string
}

// Reschedule moves a session to another slot of the same tutor, keeping its id.
func (s *SessionService) Reschedule(ctx context.Context, in RescheduleInput) (*TransitionResult, error) {
	if in.NewSlot == nil {
		return nil, fmt.Errorf("%w: new slot is required", ErrInvalidInput)
	}
	if in.NewSlot.IsBooked() {
		return nil, ErrSlotAlreadyBooked
	}

	var (
		oldEventID *string
		record     *model.BookingRecord
	)
	sess, err := s.transition(ctx, in.SessionID, func(tx repository.Tx, sess *model.Session) error {
		if !sess.IsParticipant(in.ActorID) {
			return ErrUnauthorized
		}
		if !sess.HoldsSlot() {
			return fmt.Errorf("%w: cannot reschedule a %s session", ErrInvalidStateTransition, sess.Status)
		}

		slot, err := s.ledger.resolveSlotInTx(ctx, tx, in.NewSlot.ParentAvailabilityID, in.NewSlot.SlotIndex)
		if err != nil {
			return err
		}
		if slot.TutorID != sess.TutorID {
			return fmt.Errorf("%w: sessions can only move to slots of the same tutor", ErrSlotUnavailable)
		}
		if err := ensureFreeInTx(ctx, tx, slot.ParentAvailabilityID, slot.SlotIndex); err != nil {
			return err
		}

		tutor, student, err := participantsInTx(ctx, tx, sess.TutorID, sess.StudentID)
		if err != nil {
			return err
		}

		if err := releaseInTx(ctx, tx, sess.ParentAvailabilityID, sess.SlotIndex, sess.ID); err != nil {
			return err
		}

		now := s.ledger.now()
		oldEventID = sess.CalendarEventID
		sess.ScheduledStart = slot.StartDateTime
		sess.ScheduledEnd = slot.EndDateTime
		sess.Location = slot.Location
		sess.ParentAvailabilityID = slot.ParentAvailabilityID
		sess.SlotIndex = slot.SlotIndex
		sess.Price = priceFor(tutor, slot)
		sess.CalendarEventID = nil
		sess.RescheduleReason = in.Reason
		sess.RescheduledAt = &now

		record, err = insertRecordInTx(ctx, tx, slot, tutor, student, sess)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session rescheduled",
		zap.String("session_id", in.SessionID.String()),
		zap.Int64("actor_id", in.ActorID),
		zap.String("slot_id", SlotID(sess.ParentAvailabilityID, sess.SlotIndex)),
	)

	result := &TransitionResult{Session: sess, Booking: record}
	s.deleteCalendarEvent(ctx, result, oldEventID)
	if sess.Status == model.SessionStatusScheduled {
		s.createCalendarEvent(ctx, result)
	}
	s.notify(ctx, notify.KindSessionRescheduled, result.Session, in.Reason, sess.Counterpart(in.ActorID))
	return result, nil
}

// Complete closes a scheduled session and attaches an optional 1..5 rating.
func (s *SessionService) Complete(ctx context.Context, sessionID uuid.UUID, actorID int64, rating *int, comment string) (*TransitionResult, error) {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}

	sess, err := s.transition(ctx, sessionID, func(_ repository.Tx, sess *model.Session) error {
		if !sess.IsParticipant(actorID) {
			return ErrUnauthorized
		}
		if sess.Status != model.SessionStatusScheduled {
			return fmt.Errorf("%w: cannot complete a %s session", ErrInvalidStateTransition, sess.Status)
		}

		now := s.ledger.now()
		if s.policy.RequireEndedBeforeComplete && now.Before(sess.ScheduledEnd) {
			return fmt.Errorf("%w: session has not ended yet", ErrInvalidStateTransition)
		}

		sess.Status = model.SessionStatusCompleted
		sess.CompletedAt = &now
		if rating != nil {
			r := *rating
			sess.Rating = &r
		}
		sess.ReviewComment = comment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session completed",
		zap.String("session_id", sessionID.String()),
		zap.Int64("actor_id", actorID),
	)

	s.notify(ctx, notify.KindSessionCompleted, sess, "", sess.Counterpart(actorID))
	return &TransitionResult{Session: sess}, nil
}

// Get returns a session visible to actorID.
func (s *SessionService) Get(ctx context.Context, sessionID uuid.UUID, actorID int64) (*model.Session, error) {
	sess, err := s.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !sess.IsParticipant(actorID) {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

func (s *SessionService) ListForStudent(ctx context.Context, studentID int64) ([]*model.Session, error) {
	return s.store.Sessions().ListByStudent(ctx, studentID)
}

func (s *SessionService) ListForTutor(ctx context.Context, tutorID int64, statuses ...model.SessionStatus) ([]*model.Session, error) {
	return s.store.Sessions().ListByTutor(ctx, tutorID, statuses...)
}

func (s *SessionService) ListPendingForTutor(ctx context.Context, tutorID int64) ([]*model.Session, error) {
	return s.store.Sessions().ListByTutor(ctx, tutorID, model.SessionStatusPending)
}

// transition locks the session, applies fn and writes it back only if no
// other transition changed its status in the meantime.
func (s *SessionService) transition(ctx context.Context, sessionID uuid.UUID, fn func(tx repository.Tx, sess *model.Session) error) (*model.Session, error) {
	var out *model.Session
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		sess, err := tx.Sessions().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if sess == nil {
			return ErrSessionNotFound
		}

		expected := sess.Status
		if err := fn(tx, sess); err != nil {
			return err
		}

		err = tx.Sessions().UpdateIfStatus(ctx, sess, expected)
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: session changed concurrently", ErrInvalidStateTransition)
		}
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		out = sess
		return nil
	})
	return out, err
}

// createCalendarEvent puts a scheduled session on the tutor's calendar.
// Failures become warnings and never undo the transition.
func (s *SessionService) createCalendarEvent(ctx context.Context, result *TransitionResult) {
	if s.calendar == nil {
		return
	}
	sess := result.Session

	tutor, student, err := s.participants(ctx, sess)
	if err != nil {
		s.logger.Warn("Failed to load session participants for calendar",
			zap.String("session_id", sess.ID.String()), zap.Error(err))
		result.warn("calendar event was not created")
		return
	}
	if !tutor.HasCalendar() {
		return
	}

	ev := calendar.Event{
		Title:       fmt.Sprintf("%s with %s", sess.Course, student.DisplayName()),
		Description: sess.Notes,
		Location:    sess.Location,
		Start:       sess.ScheduledStart,
		End:         sess.ScheduledEnd,
	}
	if student.Email != "" {
		ev.Attendees = []string{student.Email}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.policy.ExternalTimeout)
	defer cancel()

	eventID, err := s.calendar.CreateEvent(callCtx, tutor.CalendarToken, tutor.CalendarID, ev)
	if err != nil {
		s.logger.Warn("Failed to create calendar event",
			zap.String("session_id", sess.ID.String()), zap.Error(err))
		result.warn("calendar event was not created")
		return
	}

	err = s.store.Sessions().SetCalendarEventID(ctx, sess.ID, eventID, sess.Status, sess.SlotKey())
	if errors.Is(err, repository.ErrConflict) {
		// Another transition moved or closed the session while the event was created.
		s.logger.Warn("Session changed before calendar event was linked",
			zap.String("session_id", sess.ID.String()),
			zap.String("event_id", eventID),
		)
		s.discardCalendarEvent(ctx, result, tutor, eventID)
		return
	}
	if err != nil {
		s.logger.Warn("Failed to store calendar event id",
			zap.String("session_id", sess.ID.String()),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		result.warn("calendar event was created but not linked to the session")
		return
	}

	updated := *sess
	updated.CalendarEventID = &eventID
	result.Session = &updated
}

// discardCalendarEvent removes an event that could not be linked to its session.
func (s *SessionService) discardCalendarEvent(ctx context.Context, result *TransitionResult, tutor *model.User, eventID string) {
	callCtx, cancel := context.WithTimeout(ctx, s.policy.ExternalTimeout)
	defer cancel()

	if err := s.calendar.DeleteEvent(callCtx, tutor.CalendarToken, tutor.CalendarID, eventID); err != nil {
		s.logger.Warn("Failed to delete unlinked calendar event",
			zap.String("session_id", result.Session.ID.String()),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		result.warn("calendar event was created but not linked to the session")
		return
	}
	result.warn("session changed concurrently; its calendar event was discarded")
}

func (s *SessionService) deleteCalendarEvent(ctx context.Context, result *TransitionResult, eventID *string) {
	if s.calendar == nil || eventID == nil || *eventID == "" {
		return
	}

	tutor, err := s.store.Users().GetByID(ctx, result.Session.TutorID)
	if err != nil || tutor == nil || !tutor.HasCalendar() {
		s.logger.Warn("Cannot reach tutor calendar to delete event",
			zap.String("session_id", result.Session.ID.String()),
			zap.String("event_id", *eventID),
			zap.Error(err),
		)
		result.warn("calendar event was not removed")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.policy.ExternalTimeout)
	defer cancel()

	if err := s.calendar.DeleteEvent(callCtx, tutor.CalendarToken, tutor.CalendarID, *eventID); err != nil {
		s.logger.Warn("Failed to delete calendar event",
			zap.String("session_id", result.Session.ID.String()),
			zap.String("event_id", *eventID),
			zap.Error(err),
		)
		result.warn("calendar event was not removed")
	}
}

func (s *SessionService) participants(ctx context.Context, sess *model.Session) (*model.User, *model.User, error) {
	tutor, err := s.store.Users().GetByID(ctx, sess.TutorID)
	if err != nil {
		return nil, nil, err
	}
	student, err := s.store.Users().GetByID(ctx, sess.StudentID)
	if err != nil {
		return nil, nil, err
	}
	if tutor == nil || student == nil {
		return nil, nil, ErrUserNotFound
	}
	return tutor, student, nil
}

// notify hands the event to the dispatcher; delivery happens in the background.
func (s *SessionService) notify(ctx context.Context, kind notify.Kind, sess *model.Session, reason string, to ...int64) {
	if s.notifier == nil {
		return
	}

	tutor, student, err := s.participants(ctx, sess)
	if err != nil {
		s.logger.Warn("Failed to build notification",
			zap.String("kind", string(kind)),
			zap.String("session_id", sess.ID.String()),
			zap.Error(err),
		)
		return
	}

	n := notify.Notification{
		Kind:        kind,
		SessionID:   sess.ID,
		Course:      sess.Course,
		Start:       sess.ScheduledStart,
		End:         sess.ScheduledEnd,
		Location:    sess.Location,
		TutorName:   tutor.DisplayName(),
		StudentName: student.DisplayName(),
		Reason:      reason,
		OccurredAt:  s.ledger.now(),
	}
	for _, id := range to {
		switch id {
		case tutor.ID:
			n.Recipients = append(n.Recipients, recipient(tutor, notify.RoleTutor))
		case student.ID:
			n.Recipients = append(n.Recipients, recipient(student, notify.RoleStudent))
		}
	}

	s.notifier.Dispatch(n)
}

func recipient(u *model.User, role notify.Role) notify.Recipient {
	return notify.Recipient{
		UserID:     u.ID,
		Role:       role,
		Name:       u.DisplayName(),
		Email:      u.Email,
		TelegramID: u.TelegramID,
	}
}
