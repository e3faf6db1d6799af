package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const availabilityColumns = `id, tutor_id, title, course, location, start_date_time, end_date_time,
	recurring, calendar_id, created_at, updated_at`

type AvailabilityRepository struct {
	db base.DBTX
}

func NewAvailabilityRepository(db base.DBTX) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// Upsert creates the window or refreshes it from the calendar event with the same id.
func (r *AvailabilityRepository) Upsert(ctx context.Context, w *model.AvailabilityWindow) error {
	query := `
		INSERT INTO availability_windows (id, tutor_id, title, course, location, start_date_time, end_date_time, recurring, calendar_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			tutor_id = EXCLUDED.tutor_id,
			title = EXCLUDED.title,
			course = EXCLUDED.course,
			location = EXCLUDED.location,
			start_date_time = EXCLUDED.start_date_time,
			end_date_time = EXCLUDED.end_date_time,
			recurring = EXCLUDED.recurring,
			calendar_id = EXCLUDED.calendar_id,
			updated_at = now()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		w.ID,
		w.TutorID,
		w.Title,
		w.Course,
		w.Location,
		w.StartDateTime,
		w.EndDateTime,
		w.Recurring,
		w.CalendarID,
	).Scan(&w.CreatedAt, &w.UpdatedAt)

	if err != nil {
		return fmt.Errorf("upsert availability window: %w", err)
	}

	return nil
}

// GetByID returns the window with the given calendar event id.
func (r *AvailabilityRepository) GetByID(ctx context.Context, id string) (*model.AvailabilityWindow, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_windows WHERE id = $1`

	w, err := scanAvailability(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability window by id: %w", err)
	}

	return w, nil
}

func (r *AvailabilityRepository) ListByTutor(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.AvailabilityWindow, error) {
	query := `SELECT ` + availabilityColumns + `
		FROM availability_windows
		WHERE tutor_id = $1
		  AND start_date_time < $3
		  AND end_date_time > $2
		ORDER BY start_date_time, id
	`

	rows, err := r.db.Query(ctx, query, tutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list availability by tutor: %w", err)
	}

	windows, err := base.CollectRows(rows, scanAvailability)
	if err != nil {
		return nil, fmt.Errorf("scan availability window: %w", err)
	}

	return windows, nil
}

func (r *AvailabilityRepository) ListByCourse(ctx context.Context, course string, from, to time.Time) ([]*model.AvailabilityWindow, error) {
	query := `SELECT ` + availabilityColumns + `
		FROM availability_windows
		WHERE course = $1
		  AND start_date_time < $3
		  AND end_date_time > $2
		ORDER BY tutor_id, start_date_time, id
	`

	rows, err := r.db.Query(ctx, query, course, from, to)
	if err != nil {
		return nil, fmt.Errorf("list availability by course: %w", err)
	}

	windows, err := base.CollectRows(rows, scanAvailability)
	if err != nil {
		return nil, fmt.Errorf("scan availability window: %w", err)
	}

	return windows, nil
}

// Delete removes the window; a missing row is not an error.
func (r *AvailabilityRepository) Delete(ctx context.Context, id string) error {
	if _, err := base.ExecAffected(ctx, r.db, `DELETE FROM availability_windows WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete availability window: %w", err)
	}
	return nil
}

func scanAvailability(row pgx.Row) (*model.AvailabilityWindow, error) {
	var w model.AvailabilityWindow
	err := row.Scan(
		&w.ID,
		&w.TutorID,
		&w.Title,
		&w.Course,
		&w.Location,
		&w.StartDateTime,
		&w.EndDateTime,
		&w.Recurring,
		&w.CalendarID,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
