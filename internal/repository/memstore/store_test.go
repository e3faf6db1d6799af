package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ repository.Store = (*Store)(nil)

func record(availabilityID string, index int, sessionID uuid.UUID) *model.BookingRecord {
	return &model.BookingRecord{
		ParentAvailabilityID: availabilityID,
		SlotIndex:            index,
		SessionID:            sessionID,
	}
}

func TestBookings_InsertIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Bookings().Insert(ctx, record("av1", 0, uuid.New())))
	err := s.Bookings().Insert(ctx, record("av1", 0, uuid.New()))
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, s.Bookings().Insert(ctx, record("av1", 1, uuid.New())))
}

func TestBookings_DeleteBySlotMatchesSession(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()
	require.NoError(t, s.Bookings().Insert(ctx, record("av1", 0, owner)))

	n, err := s.Bookings().DeleteBySlot(ctx, "av1", 0, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Bookings().DeleteBySlot(ctx, "av1", 0, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess := &model.Session{Status: model.SessionStatusPending}

	err := s.WithTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.Sessions().Create(ctx, sess))
		require.NoError(t, tx.Bookings().Insert(ctx, record("av1", 0, sess.ID)))
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	got, err := s.Sessions().GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec, err := s.Bookings().GetBySlot(ctx, "av1", 0)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestWithTx_Commits(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess := &model.Session{Status: model.SessionStatusPending}

	require.NoError(t, s.WithTx(ctx, func(tx repository.Tx) error {
		return tx.Sessions().Create(ctx, sess)
	}))

	got, err := s.Sessions().GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSessions_UpdateIfStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess := &model.Session{Status: model.SessionStatusPending}
	require.NoError(t, s.Sessions().Create(ctx, sess))

	sess.Status = model.SessionStatusScheduled
	require.NoError(t, s.Sessions().UpdateIfStatus(ctx, sess, model.SessionStatusPending))

	sess.Status = model.SessionStatusDeclined
	err := s.Sessions().UpdateIfStatus(ctx, sess, model.SessionStatusPending)
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := s.Sessions().GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusScheduled, got.Status)
}

func TestSessions_SetCalendarEventID(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess := &model.Session{
		Status:               model.SessionStatusScheduled,
		ParentAvailabilityID: "av1",
		SlotIndex:            2,
		Notes:                "bring the lab",
	}
	require.NoError(t, s.Sessions().Create(ctx, sess))
	key := model.SlotKey{ParentAvailabilityID: "av1", SlotIndex: 2}

	err := s.Sessions().SetCalendarEventID(ctx, sess.ID, "evt-x", model.SessionStatusScheduled,
		model.SlotKey{ParentAvailabilityID: "av1", SlotIndex: 0})
	assert.ErrorIs(t, err, repository.ErrConflict, "slot moved")

	err = s.Sessions().SetCalendarEventID(ctx, sess.ID, "evt-x", model.SessionStatusPending, key)
	assert.ErrorIs(t, err, repository.ErrConflict, "status changed")

	require.NoError(t, s.Sessions().SetCalendarEventID(ctx, sess.ID, "evt-1", model.SessionStatusScheduled, key))

	err = s.Sessions().SetCalendarEventID(ctx, sess.ID, "evt-2", model.SessionStatusScheduled, key)
	assert.ErrorIs(t, err, repository.ErrConflict, "already linked")

	got, err := s.Sessions().GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CalendarEventID)
	assert.Equal(t, "evt-1", *got.CalendarEventID)
	assert.Equal(t, "bring the lab", got.Notes)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	w := &model.AvailabilityWindow{
		ID:            "av1",
		TutorID:       1,
		StartDateTime: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		EndDateTime:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Availability().Upsert(ctx, w))

	got, err := s.Availability().GetByID(ctx, "av1")
	require.NoError(t, err)
	got.TutorID = 99

	again, err := s.Availability().GetByID(ctx, "av1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.TutorID)
}

func TestAvailability_ListFiltersByOverlap(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"early", "inside", "late"} {
		start := base.Add(time.Duration(i*10) * time.Hour)
		require.NoError(t, s.Availability().Upsert(ctx, &model.AvailabilityWindow{
			ID: id, TutorID: 1, Course: "ISIS3710",
			StartDateTime: start, EndDateTime: start.Add(2 * time.Hour),
		}))
	}

	got, err := s.Availability().ListByTutor(ctx, 1, base.Add(time.Hour), base.Add(11*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)
	assert.Equal(t, "inside", got[1].ID)

	got, err = s.Availability().ListByCourse(ctx, "MATE1203", base, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUsers_UniqueEmailAndTelegram(t *testing.T) {
	ctx := context.Background()
	s := New()
	tg := int64(7)
	require.NoError(t, s.Users().Create(ctx, &model.User{Email: "ana@example.com", TelegramID: &tg}))

	assert.ErrorIs(t, s.Users().Create(ctx, &model.User{Email: "ANA@example.com"}), repository.ErrConflict)
	assert.ErrorIs(t, s.Users().Create(ctx, &model.User{TelegramID: &tg}), repository.ErrConflict)
	assert.NoError(t, s.Users().Create(ctx, &model.User{}))
	assert.NoError(t, s.Users().Create(ctx, &model.User{}), "empty emails do not collide")
}
