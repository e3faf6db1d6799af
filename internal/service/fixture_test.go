package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/calendar"
	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/notify"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository/memstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fakeCalendar struct {
	mu        sync.Mutex
	events    []calendar.Event
	listErr   error
	createErr error
	deleteErr error
	created   []calendar.Event
	deleted   []string
	seq       int

	// duringCreate runs once, inside the next CreateEvent call and before it returns.
	duringCreate func()
}

func (c *fakeCalendar) ListEvents(_ context.Context, _, _ string, _, _ time.Time) ([]calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]calendar.Event(nil), c.events...), nil
}

func (c *fakeCalendar) CreateEvent(_ context.Context, _, _ string, ev calendar.Event) (string, error) {
	c.mu.Lock()
	hook := c.duringCreate
	c.duringCreate = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.seq++
	ev.ID = fmt.Sprintf("evt-%d", c.seq)
	c.created = append(c.created, ev)
	return ev.ID, nil
}

func (c *fakeCalendar) UpdateEvent(context.Context, string, string, calendar.Event) error {
	return errors.New("not implemented")
}

func (c *fakeCalendar) DeleteEvent(_ context.Context, _, _, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, eventID)
	return nil
}

type recordingDispatcher struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (d *recordingDispatcher) Dispatch(n notify.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, n)
}

func (d *recordingDispatcher) last() notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.got[len(d.got)-1]
}

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	ledger   *BookingLedger
	sessions *SessionService
	cal      *fakeCalendar
	sent     *recordingDispatcher
	now      time.Time

	tutor   *model.User
	student *model.User
	other   *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:   context.Background(),
		store: memstore.New(),
		cal:   &fakeCalendar{},
		sent:  &recordingDispatcher{},
		now:   at(6, 0),
	}
	f.ledger = NewBookingLedger(f.store, zap.NewNop()).WithClock(func() time.Time { return f.now })
	f.sessions = NewSessionService(f.store, f.ledger, f.cal, f.sent, DefaultPolicy(), zap.NewNop())

	f.tutor = f.addUser(t, &model.User{
		Email:         "ana@example.com",
		FirstName:     "Ana",
		IsTutor:       true,
		HourlyRate:    40000,
		CalendarID:    "cal-ana",
		CalendarToken: "tok-ana",
	})
	f.student = f.addUser(t, &model.User{Email: "luis@example.com", FirstName: "Luis"})
	f.other = f.addUser(t, &model.User{Email: "sofia@example.com", FirstName: "Sofía"})
	return f
}

func (f *fixture) addUser(t *testing.T, u *model.User) *model.User {
	t.Helper()
	require.NoError(t, f.store.Users().Create(f.ctx, u))
	return u
}

// addWindow stores a window of tutorID and returns it.
func (f *fixture) addWindow(t *testing.T, id string, tutorID int64, start time.Time, d time.Duration) *model.AvailabilityWindow {
	t.Helper()
	w := &model.AvailabilityWindow{
		ID:            id,
		TutorID:       tutorID,
		Title:         "Tutoría ISIS3710",
		Course:        "ISIS3710",
		Location:      "ML-512",
		StartDateTime: start,
		EndDateTime:   start.Add(d),
	}
	require.NoError(t, f.store.Availability().Upsert(f.ctx, w))
	return w
}

// slot regenerates the slot with its current booking state.
func (f *fixture) slot(t *testing.T, availabilityID string, index int) *model.Slot {
	t.Helper()
	w, err := f.store.Availability().GetByID(f.ctx, availabilityID)
	require.NoError(t, err)
	require.NotNil(t, w)
	s := findSlot(w, index)
	require.NotNil(t, s)
	require.NoError(t, f.ledger.AnnotateSlots(f.ctx, []*model.Slot{s}))
	return s
}

func (f *fixture) book(t *testing.T, availabilityID string, index int, student *model.User) *model.Session {
	t.Helper()
	res, err := f.sessions.Book(f.ctx, BookInput{
		Slot:      f.slot(t, availabilityID, index),
		StudentID: student.ID,
		ActorID:   student.ID,
	})
	require.NoError(t, err)
	return res.Session
}

func (f *fixture) bookingsFor(t *testing.T, s *model.Session) []*model.BookingRecord {
	t.Helper()
	records, err := f.store.Bookings().ListBySession(f.ctx, s.ID)
	require.NoError(t, err)
	return records
}
