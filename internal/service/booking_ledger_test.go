package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimSlot_CreatesPendingSessionAndRecord(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), 3*time.Hour)

	res, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{
		Slot:      f.slot(t, "av1", 1),
		StudentID: f.student.ID,
		Notes:     "parcial 2",
	})
	require.NoError(t, err)

	sess := res.Session
	assert.Equal(t, model.SessionStatusPending, sess.Status)
	assert.Equal(t, model.ApprovalPending, sess.TutorApprovalStatus)
	assert.Equal(t, at(10, 0), sess.ScheduledStart)
	assert.Equal(t, at(11, 0), sess.ScheduledEnd)
	assert.Equal(t, "ISIS3710", sess.Course)
	assert.Equal(t, "parcial 2", sess.Notes)
	assert.Equal(t, 40000, sess.Price)

	rec := res.Booking
	assert.Equal(t, sess.ID, rec.SessionID)
	assert.Equal(t, "av1", rec.ParentAvailabilityID)
	assert.Equal(t, 1, rec.SlotIndex)
	assert.Equal(t, "ana@example.com", rec.TutorEmail)
	assert.Equal(t, "luis@example.com", rec.StudentEmail)

	booked, err := f.ledger.IsSlotBooked(f.ctx, "av1", 1)
	require.NoError(t, err)
	assert.True(t, booked)

	s := f.slot(t, "av1", 1)
	assert.True(t, s.IsBooked())
	require.NotNil(t, s.BookedBy)
	assert.Equal(t, f.student.ID, *s.BookedBy)
	assert.Equal(t, sess.ID, *s.SessionID)
	assert.False(t, f.slot(t, "av1", 0).IsBooked())
}

func TestClaimSlot_AutoApproveSkipsPending(t *testing.T) {
	f := newFixture(t)
	f.tutor.AutoApproveBookings = true
	require.NoError(t, f.store.Users().Update(f.ctx, f.tutor))
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), time.Hour)

	res, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: f.student.ID})
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusScheduled, res.Session.Status)
	assert.Equal(t, model.ApprovalNotRequired, res.Session.TutorApprovalStatus)
}

func TestClaimSlot_TutorOnBehalfOfStudent(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), time.Hour)

	res, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{
		Slot:      f.slot(t, "av1", 0),
		StudentID: f.student.ID,
		ActorID:   f.tutor.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusScheduled, res.Session.Status)

	_, err = f.ledger.ClaimSlot(f.ctx, ClaimRequest{
		Slot:      f.slot(t, "av1", 0),
		StudentID: f.student.ID,
		ActorID:   f.other.ID,
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClaimSlot_CachedBookedFlag(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), time.Hour)

	s := f.slot(t, "av1", 0)
	s.Status = model.SlotStatusBooked

	_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: s, StudentID: f.student.ID})
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
}

func TestClaimSlot_StaleViewIsRecheckedAgainstLedger(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), time.Hour)

	stale := f.slot(t, "av1", 0)
	_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: f.student.ID})
	require.NoError(t, err)

	require.False(t, stale.IsBooked())
	_, err = f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: stale, StudentID: f.other.ID})
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

	sessions, err := f.store.Sessions().ListByTutor(f.ctx, f.tutor.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestClaimSlot_ConcurrentClaimsOneWinner(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), time.Hour)

	const n = 16
	students := make([]*model.User, n)
	for i := range students {
		students[i] = f.addUser(t, &model.User{Email: fmt.Sprintf("student%d@example.com", i)})
	}

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		mu       sync.Mutex
		wins     int
		conflict int
		other    []error
	)
	for _, student := range students {
		slot := f.slot(t, "av1", 0)
		wg.Add(1)
		go func(studentID int64) {
			defer wg.Done()
			<-start
			_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: slot, StudentID: studentID})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotAlreadyBooked):
				conflict++
			default:
				other = append(other, err)
			}
		}(student.ID)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflict)

	records, err := f.store.Bookings().ListByAvailabilityIDs(f.ctx, []string{"av1"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	sessions, err := f.store.Sessions().ListByTutor(f.ctx, f.tutor.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestClaimSlot_LostInsertRollsBackSession(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), time.Hour)

	f.store.BeforeBookingInsert = func(*model.BookingRecord) error { return repository.ErrConflict }
	_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: f.student.ID})
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

	f.store.BeforeBookingInsert = func(*model.BookingRecord) error { return errors.New("disk full") }
	_, err = f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: f.student.ID})
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")

	sessions, err := f.store.Sessions().ListByStudent(f.ctx, f.student.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions, "session must not outlive a failed claim")

	f.store.BeforeBookingInsert = nil
	_, err = f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: f.student.ID})
	assert.NoError(t, err)
}

func TestClaimSlot_Validation(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), 2*time.Hour)

	t.Run("missing slot", func(t *testing.T) {
		_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{StudentID: f.student.ID})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("tutor books own slot", func(t *testing.T) {
		_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: f.tutor.ID})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: 999})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("index outside window", func(t *testing.T) {
		s := f.slot(t, "av1", 1)
		s.SlotIndex = 5
		_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: s, StudentID: f.student.ID})
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	})

	t.Run("window removed", func(t *testing.T) {
		s := f.slot(t, "av1", 1)
		s.ParentAvailabilityID = "gone"
		_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: s, StudentID: f.student.ID})
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	})

	t.Run("slot already started", func(t *testing.T) {
		f.now = at(9, 5)
		defer func() { f.now = at(6, 0) }()
		_, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: f.student.ID})
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	})
}

func TestReleaseSlot_RequiresMatchingSession(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, "av1", f.tutor.ID, at(9, 0), time.Hour)

	res, err := f.ledger.ClaimSlot(f.ctx, ClaimRequest{Slot: f.slot(t, "av1", 0), StudentID: f.student.ID})
	require.NoError(t, err)

	require.NoError(t, f.ledger.ReleaseSlot(f.ctx, "av1", 0, uuid.New()))
	booked, err := f.ledger.IsSlotBooked(f.ctx, "av1", 0)
	require.NoError(t, err)
	assert.True(t, booked, "a foreign session id must not release the slot")

	require.NoError(t, f.ledger.ReleaseSlot(f.ctx, "av1", 0, res.Session.ID))
	booked, err = f.ledger.IsSlotBooked(f.ctx, "av1", 0)
	require.NoError(t, err)
	assert.False(t, booked)

	assert.NoError(t, f.ledger.ReleaseSlot(f.ctx, "av1", 0, res.Session.ID))
}
