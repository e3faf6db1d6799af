package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, telegram_id, email, username, first_name, last_name, is_tutor,
	auto_approve_bookings, hourly_rate, calendar_id, calendar_token, created_at`

type UserRepository struct {
	db base.DBTX
}

func NewUserRepository(db base.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user and fills ID and CreatedAt.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (telegram_id, email, username, first_name, last_name, is_tutor,
			auto_approve_bookings, hourly_rate, calendar_id, calendar_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		user.TelegramID,
		user.Email,
		user.Username,
		user.FirstName,
		user.LastName,
		user.IsTutor,
		user.AutoApproveBookings,
		user.HourlyRate,
		user.CalendarID,
		user.CalendarToken,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// Update overwrites the user row.
func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET telegram_id = $1, email = $2, username = $3, first_name = $4, last_name = $5, is_tutor = $6,
			auto_approve_bookings = $7, hourly_rate = $8, calendar_id = $9, calendar_token = $10
		WHERE id = $11
	`

	affected, err := base.ExecAffected(
		ctx, r.db, query,
		user.TelegramID,
		user.Email,
		user.Username,
		user.FirstName,
		user.LastName,
		user.IsTutor,
		user.AutoApproveBookings,
		user.HourlyRate,
		user.CalendarID,
		user.CalendarToken,
		user.ID,
	)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// GetByID returns the user or nil.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, "get user by id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail matches email case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "get user by email", `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// GetByTelegramID returns the user linked to a Telegram account.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return r.getOne(ctx, "get user by telegram id", `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// ListTutors returns every tutor ordered by id.
func (r *UserRepository) ListTutors(ctx context.Context) ([]*model.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE is_tutor = true
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}

	tutors, err := base.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("scan tutor: %w", err)
	}

	return tutors, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.IsTutor,
		&user.AutoApproveBookings,
		&user.HourlyRate,
		&user.CalendarID,
		&user.CalendarToken,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
