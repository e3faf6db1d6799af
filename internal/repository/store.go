package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConflict is returned when a conditional write loses: the slot is already
// held, or the row changed since it was read.
var ErrConflict = errors.New("conflict")

// Get methods return (nil, nil) when the row does not exist.

type AvailabilityStore interface {
	Upsert(ctx context.Context, w *model.AvailabilityWindow) error
	GetByID(ctx context.Context, id string) (*model.AvailabilityWindow, error)
	// ListByTutor returns windows overlapping [from, to) ordered by start.
	ListByTutor(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.AvailabilityWindow, error)
	// ListByCourse returns windows overlapping [from, to) ordered by tutor, then start.
	ListByCourse(ctx context.Context, course string, from, to time.Time) ([]*model.AvailabilityWindow, error)
	Delete(ctx context.Context, id string) error
}

type BookingStore interface {
	// Insert creates the record only if its slot is free; otherwise ErrConflict.
	Insert(ctx context.Context, b *model.BookingRecord) error
	GetBySlot(ctx context.Context, availabilityID string, slotIndex int) (*model.BookingRecord, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.BookingRecord, error)
	ListByAvailabilityIDs(ctx context.Context, ids []string) ([]*model.BookingRecord, error)
	DeleteBySlot(ctx context.Context, availabilityID string, slotIndex int, sessionID uuid.UUID) (int64, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Session, error)
	// UpdateIfStatus writes s only while the stored status still equals expected.
	UpdateIfStatus(ctx context.Context, s *model.Session, expected model.SessionStatus) error
	// SetCalendarEventID links eventID to a session that has no event yet and
	// still has the expected status and slot; otherwise ErrConflict.
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string, expected model.SessionStatus, slot model.SlotKey) error
	ListByStudent(ctx context.Context, studentID int64) ([]*model.Session, error)
	ListByTutor(ctx context.Context, tutorID int64, statuses ...model.SessionStatus) ([]*model.Session, error)
}

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	ListTutors(ctx context.Context) ([]*model.User, error)
}

// Tx is the set of stores usable inside one transaction.
type Tx interface {
	Availability() AvailabilityStore
	Bookings() BookingStore
	Sessions() SessionStore
	Users() UserStore
}

// Store is the persistence boundary used by the services.
type Store interface {
	Tx
	// WithTx runs fn atomically: every write made through tx commits or none does.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
	repos
}

type repos struct {
	availability *AvailabilityRepository
	bookings     *BookingRepository
	sessions     *SessionRepository
	users        *UserRepository
}

func (r repos) Availability() AvailabilityStore { return r.availability }
func (r repos) Bookings() BookingStore          { return r.bookings }
func (r repos) Sessions() SessionStore          { return r.sessions }
func (r repos) Users() UserStore                { return r.users }

func NewStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, repos: newRepos(pool)}
}

func newRepos(db base.DBTX) repos {
	return repos{
		availability: NewAvailabilityRepository(db),
		bookings:     NewBookingRepository(db),
		sessions:     NewSessionRepository(db),
		users:        NewUserRepository(db),
	}
}

func (s *PgStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
