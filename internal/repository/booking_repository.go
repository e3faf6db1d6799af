package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, parent_availability_id, slot_index, tutor_id, tutor_email, student_id, student_email,
	session_id, slot_start_time, slot_end_time, course, booked_at`

type BookingRepository struct {
	db base.DBTX
}

func NewBookingRepository(db base.DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

// Insert claims the slot. The unique (parent_availability_id, slot_index) index
// decides concurrent claims: the loser gets no row back and ErrConflict.
func (r *BookingRepository) Insert(ctx context.Context, b *model.BookingRecord) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	query := `
		INSERT INTO booking_records (id, parent_availability_id, slot_index, tutor_id, tutor_email,
			student_id, student_email, session_id, slot_start_time, slot_end_time, course)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (parent_availability_id, slot_index) DO NOTHING
		RETURNING booked_at
	`

	err := r.db.QueryRow(
		ctx, query,
		b.ID,
		b.ParentAvailabilityID,
		b.SlotIndex,
		b.TutorID,
		b.TutorEmail,
		b.StudentID,
		b.StudentEmail,
		b.SessionID,
		b.SlotStartTime,
		b.SlotEndTime,
		b.Course,
	).Scan(&b.BookedAt)

	if err != nil {
		if base.IsNotFound(err) || base.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert booking record: %w", err)
	}

	return nil
}

// GetBySlot returns the record holding the slot, if any.
func (r *BookingRepository) GetBySlot(ctx context.Context, availabilityID string, slotIndex int) (*model.BookingRecord, error) {
	query := `SELECT ` + bookingColumns + `
		FROM booking_records
		WHERE parent_availability_id = $1 AND slot_index = $2
	`

	b, err := scanBooking(r.db.QueryRow(ctx, query, availabilityID, slotIndex))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by slot: %w", err)
	}

	return b, nil
}

func (r *BookingRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.BookingRecord, error) {
	query := `SELECT ` + bookingColumns + `
		FROM booking_records
		WHERE session_id = $1
		ORDER BY booked_at
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by session: %w", err)
	}

	records, err := base.CollectRows(rows, scanBooking)
	if err != nil {
		return nil, fmt.Errorf("scan booking record: %w", err)
	}

	return records, nil
}

// ListByAvailabilityIDs returns every record held against the given windows.
func (r *BookingRepository) ListByAvailabilityIDs(ctx context.Context, ids []string) ([]*model.BookingRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + bookingColumns + `
		FROM booking_records
		WHERE parent_availability_id = ANY($1)
		ORDER BY parent_availability_id, slot_index
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list bookings by availability: %w", err)
	}

	records, err := base.CollectRows(rows, scanBooking)
	if err != nil {
		return nil, fmt.Errorf("scan booking record: %w", err)
	}

	return records, nil
}

// DeleteBySlot releases the slot only if it is still held by sessionID.
func (r *BookingRepository) DeleteBySlot(ctx context.Context, availabilityID string, slotIndex int, sessionID uuid.UUID) (int64, error) {
	query := `
		DELETE FROM booking_records
		WHERE parent_availability_id = $1 AND slot_index = $2 AND session_id = $3
	`

	affected, err := base.ExecAffected(ctx, r.db, query, availabilityID, slotIndex, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete booking record: %w", err)
	}

	return affected, nil
}

func scanBooking(row pgx.Row) (*model.BookingRecord, error) {
	var b model.BookingRecord
	err := row.Scan(
		&b.ID,
		&b.ParentAvailabilityID,
		&b.SlotIndex,
		&b.TutorID,
		&b.TutorEmail,
		&b.StudentID,
		&b.StudentEmail,
		&b.SessionID,
		&b.SlotStartTime,
		&b.SlotEndTime,
		&b.Course,
		&b.BookedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
