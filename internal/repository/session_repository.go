package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, tutor_id, student_id, course, scheduled_start, scheduled_end, location, status,
	tutor_approval_status, notes, price, parent_availability_id, slot_index, calendar_event_id,
	cancelled_by, cancellation_reason, cancelled_at, decline_reason, reschedule_reason, rescheduled_at,
	rating, review_comment, completed_at, created_at, updated_at`

type SessionRepository struct {
	db base.DBTX
}

func NewSessionRepository(db base.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO sessions (id, tutor_id, student_id, course, scheduled_start, scheduled_end, location,
			status, tutor_approval_status, notes, price, parent_availability_id, slot_index, calendar_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		s.ID,
		s.TutorID,
		s.StudentID,
		s.Course,
		s.ScheduledStart,
		s.ScheduledEnd,
		s.Location,
		s.Status,
		s.TutorApprovalStatus,
		s.Notes,
		s.Price,
		s.ParentAvailabilityID,
		s.SlotIndex,
		s.CalendarEventID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

func (r *SessionRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
}

func (r *SessionRepository) get(ctx context.Context, query string, id uuid.UUID) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	return s, nil
}

// UpdateIfStatus stores every mutable field of s. It matches no row when another
// transition changed the status first, which is reported as ErrConflict.
func (r *SessionRepository) UpdateIfStatus(ctx context.Context, s *model.Session, expected model.SessionStatus) error {
	query := `
		UPDATE sessions SET
			course = $3,
			scheduled_start = $4,
			scheduled_end = $5,
			location = $6,
			status = $7,
			tutor_approval_status = $8,
			notes = $9,
			price = $10,
			parent_availability_id = $11,
			slot_index = $12,
			calendar_event_id = $13,
			cancelled_by = $14,
			cancellation_reason = $15,
			cancelled_at = $16,
			decline_reason = $17,
			reschedule_reason = $18,
			rescheduled_at = $19,
			rating = $20,
			review_comment = $21,
			completed_at = $22,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		s.ID,
		expected,
		s.Course,
		s.ScheduledStart,
		s.ScheduledEnd,
		s.Location,
		s.Status,
		s.TutorApprovalStatus,
		s.Notes,
		s.Price,
		s.ParentAvailabilityID,
		s.SlotIndex,
		s.CalendarEventID,
		s.CancelledBy,
		s.CancellationReason,
		s.CancelledAt,
		s.DeclineReason,
		s.RescheduleReason,
		s.RescheduledAt,
		s.Rating,
		s.ReviewComment,
		s.CompletedAt,
	).Scan(&s.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return ErrConflict
		}
		return fmt.Errorf("update session: %w", err)
	}

	return nil
}

// SetCalendarEventID touches only calendar_event_id, so it cannot undo a
// transition committed after the caller read the session.
func (r *SessionRepository) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string, expected model.SessionStatus, slot model.SlotKey) error {
	query := `
		UPDATE sessions
		SET calendar_event_id = $2, updated_at = now()
		WHERE id = $1
		  AND status = $3
		  AND parent_availability_id = $4
		  AND slot_index = $5
		  AND calendar_event_id IS NULL
	`

	affected, err := base.ExecAffected(ctx, r.db, query, id, eventID, expected, slot.ParentAvailabilityID, slot.SlotIndex)
	if err != nil {
		return fmt.Errorf("set calendar event id: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// ListByStudent returns the student's sessions, newest first.
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE student_id = $1
		ORDER BY scheduled_start DESC
	`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by student: %w", err)
	}

	sessions, err := base.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return sessions, nil
}

// ListByTutor returns the tutor's sessions, optionally restricted to statuses.
func (r *SessionRepository) ListByTutor(ctx context.Context, tutorID int64, statuses ...model.SessionStatus) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tutor_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY scheduled_start
	`

	filter := make([]string, 0, len(statuses))
	for _, st := range statuses {
		filter = append(filter, string(st))
	}

	rows, err := r.db.Query(ctx, query, tutorID, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions by tutor: %w", err)
	}

	sessions, err := base.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.TutorID,
		&s.StudentID,
		&s.Course,
		&s.ScheduledStart,
		&s.ScheduledEnd,
		&s.Location,
		&s.Status,
		&s.TutorApprovalStatus,
		&s.Notes,
		&s.Price,
		&s.ParentAvailabilityID,
		&s.SlotIndex,
		&s.CalendarEventID,
		&s.CancelledBy,
		&s.CancellationReason,
		&s.CancelledAt,
		&s.DeclineReason,
		&s.RescheduleReason,
		&s.RescheduledAt,
		&s.Rating,
		&s.ReviewComment,
		&s.CompletedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
