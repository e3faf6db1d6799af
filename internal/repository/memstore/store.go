// Package memstore is an in-memory repository.Store. Transactions are
// serialised by a single mutex and roll back by restoring a snapshot, so the
// booking uniqueness contract holds exactly as it does on PostgreSQL.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex
	st *state

	// BeforeBookingInsert, when set, runs inside Insert before the uniqueness
	// check. Tests use it to inject a competing write or a storage failure.
	BeforeBookingInsert func(b *model.BookingRecord) error

	now func() time.Time
}

type state struct {
	windows    map[string]model.AvailabilityWindow
	bookings   map[model.SlotKey]model.BookingRecord
	sessions   map[uuid.UUID]model.Session
	users      map[int64]model.User
	nextUserID int64
}

func New() *Store {
	return &Store{
		st: &state{
			windows:  make(map[string]model.AvailabilityWindow),
			bookings: make(map[model.SlotKey]model.BookingRecord),
			sessions: make(map[uuid.UUID]model.Session),
			users:    make(map[int64]model.User),
		},
		now: time.Now,
	}
}

func (s *state) clone() *state {
	c := &state{
		windows:    make(map[string]model.AvailabilityWindow, len(s.windows)),
		bookings:   make(map[model.SlotKey]model.BookingRecord, len(s.bookings)),
		sessions:   make(map[uuid.UUID]model.Session, len(s.sessions)),
		users:      make(map[int64]model.User, len(s.users)),
		nextUserID: s.nextUserID,
	}
	for k, v := range s.windows {
		c.windows[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

type access func(fn func(st *state))

func (s *Store) locked(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func (s *Store) stores(do access) view {
	return view{store: s, do: do}
}

func (s *Store) Availability() repository.AvailabilityStore { return s.stores(s.locked).Availability() }
func (s *Store) Bookings() repository.BookingStore          { return s.stores(s.locked).Bookings() }
func (s *Store) Sessions() repository.SessionStore          { return s.stores(s.locked).Sessions() }
func (s *Store) Users() repository.UserStore                { return s.stores(s.locked).Users() }

// WithTx holds the store lock for the whole of fn. Stores obtained from the
// Store itself (not from tx) must not be used inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	direct := func(f func(st *state)) { f(s.st) }

	if err := fn(s.stores(direct)); err != nil {
		s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = snapshot
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type view struct {
	store *Store
	do    access
}

func (v view) Availability() repository.AvailabilityStore { return availabilityStore(v) }
func (v view) Bookings() repository.BookingStore          { return bookingStore(v) }
func (v view) Sessions() repository.SessionStore          { return sessionStore(v) }
func (v view) Users() repository.UserStore                { return userStore(v) }

type availabilityStore view

func (a availabilityStore) Upsert(_ context.Context, w *model.AvailabilityWindow) error {
	now := a.store.now()
	a.do(func(st *state) {
		if existing, ok := st.windows[w.ID]; ok {
			w.CreatedAt = existing.CreatedAt
		} else {
			w.CreatedAt = now
		}
		w.UpdatedAt = now
		st.windows[w.ID] = *w
	})
	return nil
}

func (a availabilityStore) GetByID(_ context.Context, id string) (*model.AvailabilityWindow, error) {
	var out *model.AvailabilityWindow
	a.do(func(st *state) {
		if w, ok := st.windows[id]; ok {
			out = &w
		}
	})
	return out, nil
}

func (a availabilityStore) ListByTutor(_ context.Context, tutorID int64, from, to time.Time) ([]*model.AvailabilityWindow, error) {
	return a.list(func(w model.AvailabilityWindow) bool {
		return w.TutorID == tutorID && overlaps(w, from, to)
	}, false), nil
}

func (a availabilityStore) ListByCourse(_ context.Context, course string, from, to time.Time) ([]*model.AvailabilityWindow, error) {
	return a.list(func(w model.AvailabilityWindow) bool {
		return w.Course == course && overlaps(w, from, to)
	}, true), nil
}

func (a availabilityStore) list(match func(model.AvailabilityWindow) bool, byTutor bool) []*model.AvailabilityWindow {
	var out []*model.AvailabilityWindow
	a.do(func(st *state) {
		for _, w := range st.windows {
			if match(w) {
				w := w
				out = append(out, &w)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if byTutor && out[i].TutorID != out[j].TutorID {
			return out[i].TutorID < out[j].TutorID
		}
		if !out[i].StartDateTime.Equal(out[j].StartDateTime) {
			return out[i].StartDateTime.Before(out[j].StartDateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func overlaps(w model.AvailabilityWindow, from, to time.Time) bool {
	return w.StartDateTime.Before(to) && w.EndDateTime.After(from)
}

func (a availabilityStore) Delete(_ context.Context, id string) error {
	a.do(func(st *state) { delete(st.windows, id) })
	return nil
}

type bookingStore view

func (b bookingStore) Insert(_ context.Context, rec *model.BookingRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := b.store.now()

	var err error
	b.do(func(st *state) {
		if hook := b.store.BeforeBookingInsert; hook != nil {
			if err = hook(rec); err != nil {
				return
			}
		}
		if _, taken := st.bookings[rec.Key()]; taken {
			err = repository.ErrConflict
			return
		}
		rec.BookedAt = now
		st.bookings[rec.Key()] = *rec
	})
	return err
}

func (b bookingStore) GetBySlot(_ context.Context, availabilityID string, slotIndex int) (*model.BookingRecord, error) {
	var out *model.BookingRecord
	b.do(func(st *state) {
		if rec, ok := st.bookings[model.SlotKey{ParentAvailabilityID: availabilityID, SlotIndex: slotIndex}]; ok {
			out = &rec
		}
	})
	return out, nil
}

func (b bookingStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*model.BookingRecord, error) {
	return b.list(func(rec model.BookingRecord) bool { return rec.SessionID == sessionID }), nil
}

func (b bookingStore) ListByAvailabilityIDs(_ context.Context, ids []string) ([]*model.BookingRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return b.list(func(rec model.BookingRecord) bool { return slices.Contains(ids, rec.ParentAvailabilityID) }), nil
}

func (b bookingStore) list(match func(model.BookingRecord) bool) []*model.BookingRecord {
	var out []*model.BookingRecord
	b.do(func(st *state) {
		for _, rec := range st.bookings {
			if match(rec) {
				rec := rec
				out = append(out, &rec)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].ParentAvailabilityID, out[j].ParentAvailabilityID); c != 0 {
			return c < 0
		}
		return out[i].SlotIndex < out[j].SlotIndex
	})
	return out
}

func (b bookingStore) DeleteBySlot(_ context.Context, availabilityID string, slotIndex int, sessionID uuid.UUID) (int64, error) {
	var affected int64
	key := model.SlotKey{ParentAvailabilityID: availabilityID, SlotIndex: slotIndex}
	b.do(func(st *state) {
		if rec, ok := st.bookings[key]; ok && rec.SessionID == sessionID {
			delete(st.bookings, key)
			affected = 1
		}
	})
	return affected, nil
}

type sessionStore view

func (s sessionStore) Create(_ context.Context, sess *model.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	now := s.store.now()

	var err error
	s.do(func(st *state) {
		if _, exists := st.sessions[sess.ID]; exists {
			err = fmt.Errorf("create session: duplicate id %s", sess.ID)
			return
		}
		sess.CreatedAt = now
		sess.UpdatedAt = now
		st.sessions[sess.ID] = *sess
	})
	return err
}

func (s sessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	var out *model.Session
	s.do(func(st *state) {
		if sess, ok := st.sessions[id]; ok {
			out = &sess
		}
	})
	return out, nil
}

// GetByIDForUpdate needs no row lock: transactions already hold the store lock.
func (s sessionStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return s.GetByID(ctx, id)
}

func (s sessionStore) UpdateIfStatus(_ context.Context, sess *model.Session, expected model.SessionStatus) error {
	now := s.store.now()

	err := repository.ErrConflict
	s.do(func(st *state) {
		stored, ok := st.sessions[sess.ID]
		if !ok || stored.Status != expected {
			return
		}
		sess.CreatedAt = stored.CreatedAt
		sess.UpdatedAt = now
		st.sessions[sess.ID] = *sess
		err = nil
	})
	return err
}

func (s sessionStore) SetCalendarEventID(_ context.Context, id uuid.UUID, eventID string, expected model.SessionStatus, slot model.SlotKey) error {
	now := s.store.now()

	err := repository.ErrConflict
	s.do(func(st *state) {
		stored, ok := st.sessions[id]
		if !ok || stored.Status != expected || stored.SlotKey() != slot || stored.CalendarEventID != nil {
			return
		}
		linked := eventID
		stored.CalendarEventID = &linked
		stored.UpdatedAt = now
		st.sessions[id] = stored
		err = nil
	})
	return err
}

func (s sessionStore) ListByStudent(_ context.Context, studentID int64) ([]*model.Session, error) {
	out := s.list(func(sess model.Session) bool { return sess.StudentID == studentID })
	slices.Reverse(out)
	return out, nil
}

func (s sessionStore) ListByTutor(_ context.Context, tutorID int64, statuses ...model.SessionStatus) ([]*model.Session, error) {
	return s.list(func(sess model.Session) bool {
		return sess.TutorID == tutorID && (len(statuses) == 0 || slices.Contains(statuses, sess.Status))
	}), nil
}

// list returns matches ordered by scheduled start ascending.
func (s sessionStore) list(match func(model.Session) bool) []*model.Session {
	var out []*model.Session
	s.do(func(st *state) {
		for _, sess := range st.sessions {
			if match(sess) {
				sess := sess
				out = append(out, &sess)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledStart.Equal(out[j].ScheduledStart) {
			return out[i].ScheduledStart.Before(out[j].ScheduledStart)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

type userStore view

func (u userStore) Create(_ context.Context, user *model.User) error {
	now := u.store.now()

	var err error
	u.do(func(st *state) {
		if conflictsWith(st, user) {
			err = repository.ErrConflict
			return
		}
		st.nextUserID++
		user.ID = st.nextUserID
		user.CreatedAt = now
		st.users[user.ID] = *user
	})
	return err
}

func (u userStore) Update(_ context.Context, user *model.User) error {
	var err error
	u.do(func(st *state) {
		stored, ok := st.users[user.ID]
		if !ok {
			err = fmt.Errorf("user not found")
			return
		}
		if conflictsWith(st, user) {
			err = repository.ErrConflict
			return
		}
		user.CreatedAt = stored.CreatedAt
		st.users[user.ID] = *user
	})
	return err
}

func conflictsWith(st *state, user *model.User) bool {
	for id, other := range st.users {
		if id == user.ID {
			continue
		}
		if user.Email != "" && strings.EqualFold(other.Email, user.Email) {
			return true
		}
		if user.TelegramID != nil && other.TelegramID != nil && *user.TelegramID == *other.TelegramID {
			return true
		}
	}
	return false
}

func (u userStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	return u.find(func(user model.User) bool { return user.ID == id }), nil
}

func (u userStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return u.find(func(user model.User) bool { return email != "" && strings.EqualFold(user.Email, email) }), nil
}

func (u userStore) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	return u.find(func(user model.User) bool { return user.TelegramID != nil && *user.TelegramID == telegramID }), nil
}

func (u userStore) find(match func(model.User) bool) *model.User {
	var out *model.User
	u.do(func(st *state) {
		for _, user := range st.users {
			if match(user) {
				user := user
				out = &user
				return
			}
		}
	})
	return out
}

func (u userStore) ListTutors(_ context.Context) ([]*model.User, error) {
	var out []*model.User
	u.do(func(st *state) {
		for _, user := range st.users {
			if user.IsTutor {
				user := user
				out = append(out, &user)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
