// Package api exposes the booking core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sessionService interface {
	Book(ctx context.Context, in service.BookInput) (*service.TransitionResult, error)
	Accept(ctx context.Context, sessionID uuid.UUID, tutorID int64) (*service.TransitionResult, error)
	Decline(ctx context.Context, sessionID uuid.UUID, tutorID int64, reason string) (*service.TransitionResult, error)
	Cancel(ctx context.Context, sessionID uuid.UUID, actorID int64, reason string) (*service.TransitionResult, error)
	Reschedule(ctx context.Context, in service.RescheduleInput) (*service.TransitionResult, error)
	Complete(ctx context.Context, sessionID uuid.UUID, actorID int64, rating *int, comment string) (*service.TransitionResult, error)
	Get(ctx context.Context, sessionID uuid.UUID, actorID int64) (*model.Session, error)
	ListForStudent(ctx context.Context, studentID int64) ([]*model.Session, error)
	ListForTutor(ctx context.Context, tutorID int64, statuses ...model.SessionStatus) ([]*model.Session, error)
}

type availabilityService interface {
	TutorSlots(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.Slot, error)
	ResolveSlot(ctx context.Context, slotID string) (*model.Slot, error)
	SyncTutor(ctx context.Context, tutorID int64, from, to time.Time) (*service.SyncReport, error)
}

type jointService interface {
	JointSlotsForCourse(ctx context.Context, course string, day time.Time) ([]*model.JointSlot, error)
}

type Options struct {
	Location       *time.Location
	SyncHorizon    time.Duration
	AllowedOrigins []string
}

type Handler struct {
	sessions     sessionService
	availability availabilityService
	joint        jointService
	auth         *Authenticator
	opts         Options
	now          func() time.Time
	logger       *zap.Logger
}

func NewHandler(
	sessions sessionService,
	availability availabilityService,
	joint jointService,
	auth *Authenticator,
	opts Options,
	logger *zap.Logger,
) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SyncHorizon <= 0 {
		opts.SyncHorizon = 14 * 24 * time.Hour
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Handler{
		sessions:     sessions,
		availability: availability,
		joint:        joint,
		auth:         auth,
		opts:         opts,
		now:          time.Now,
		logger:       logger,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.auth.RequireJWT)

		r.Get("/tutors/{id}/slots", h.tutorSlots)
		r.Post("/tutors/me/sync", h.syncMyCalendar)
		r.Get("/courses/{course}/joint-slots", h.jointSlots)

		r.Post("/bookings", h.book)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.listSessions)
			r.Get("/{id}", h.getSession)
			r.Post("/{id}/accept", h.accept)
			r.Post("/{id}/decline", h.decline)
			r.Post("/{id}/cancel", h.cancel)
			r.Post("/{id}/reschedule", h.reschedule)
			r.Post("/{id}/complete", h.complete)
		})
	})

	return r
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", CodeUnauthorized)
		return 0, false
	}
	return claims.Sub, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", CodeInvalidInput)
		return false
	}
	return true
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id", CodeInvalidInput)
		return uuid.Nil, false
	}
	return id, true
}

// parseTime accepts RFC 3339 timestamps or dates, read in loc.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, v, loc)
}

func (h *Handler) tutorSlots(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	tutorID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || tutorID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid tutor id", CodeInvalidInput)
		return
	}

	from := h.now()
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = parseTime(v, h.opts.Location); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from", CodeInvalidInput)
			return
		}
	}
	to := from.AddDate(0, 0, 7)
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = parseTime(v, h.opts.Location); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to", CodeInvalidInput)
			return
		}
	}

	slots, err := h.availability.TutorSlots(r.Context(), tutorID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if slots == nil {
		slots = []*model.Slot{}
	}
	writeJSON(w, http.StatusOK, model.TutorSlots{TutorID: tutorID, Slots: slots})
}

func (h *Handler) syncMyCalendar(w http.ResponseWriter, r *http.Request) {
	tutorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	from := h.now()
	report, err := h.availability.SyncTutor(r.Context(), tutorID, from, from.Add(h.opts.SyncHorizon))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) jointSlots(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	day := h.now().In(h.opts.Location)
	if v := r.URL.Query().Get("day"); v != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, v, h.opts.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD", CodeInvalidInput)
			return
		}
		day = parsed
	}

	slots, err := h.joint.JointSlotsForCourse(r.Context(), chi.URLParam(r, "course"), day)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day.Format(time.DateOnly), "slots": slots})
}

type bookReq struct {
	SlotID    string `json:"slot_id"`
	StudentID int64  `json:"student_id"`
	Notes     string `json:"notes"`
	Course    string `json:"course"`
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in bookReq
	if !decode(w, r, &in) {
		return
	}
	if in.SlotID == "" {
		writeError(w, http.StatusBadRequest, "slot_id required", CodeInvalidInput)
		return
	}

	slot, err := h.availability.ResolveSlot(r.Context(), in.SlotID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.sessions.Book(r.Context(), service.BookInput{
		Slot:      slot,
		StudentID: in.StudentID,
		ActorID:   actorID,
		Notes:     in.Notes,
		Course:    in.Course,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var (
		sessions []*model.Session
		err      error
	)
	switch r.URL.Query().Get("role") {
	case "tutor":
		var statuses []model.SessionStatus
		if st := r.URL.Query().Get("status"); st != "" {
			statuses = append(statuses, model.SessionStatus(st))
		}
		sessions, err = h.sessions.ListForTutor(r.Context(), actorID, statuses...)
	case "", "student":
		sessions, err = h.sessions.ListForStudent(r.Context(), actorID)
	default:
		writeError(w, http.StatusBadRequest, "role must be tutor or student", CodeInvalidInput)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(r.Context(), id, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, actorID int64) (*service.TransitionResult, error) {
		return h.sessions.Accept(ctx, id, actorID)
	})
}

func (h *Handler) decline(w http.ResponseWriter, r *http.Request) {
	var in reasonReq
	if !decode(w, r, &in) {
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, actorID int64) (*service.TransitionResult, error) {
		return h.sessions.Decline(ctx, id, actorID, in.Reason)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var in reasonReq
	if !decode(w, r, &in) {
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, actorID int64) (*service.TransitionResult, error) {
		return h.sessions.Cancel(ctx, id, actorID, in.Reason)
	})
}

type rescheduleReq struct {
	SlotID string `json:"slot_id"`
	Reason string `json:"reason"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	var in rescheduleReq
	if !decode(w, r, &in) {
		return
	}
	if in.SlotID == "" {
		writeError(w, http.StatusBadRequest, "slot_id required", CodeInvalidInput)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, actorID int64) (*service.TransitionResult, error) {
		slot, err := h.availability.ResolveSlot(ctx, in.SlotID)
		if err != nil {
			return nil, err
		}
		return h.sessions.Reschedule(ctx, service.RescheduleInput{
			SessionID: id,
			ActorID:   actorID,
			NewSlot:   slot,
			Reason:    in.Reason,
		})
	})
}

type completeReq struct {
	Rating  *int   `json:"rating"`
	Comment string `json:"comment"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	var in completeReq
	if !decode(w, r, &in) {
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, actorID int64) (*service.TransitionResult, error) {
		return h.sessions.Complete(ctx, id, actorID, in.Rating, in.Comment)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID, actorID int64) (*service.TransitionResult, error)) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	res, err := fn(r.Context(), id, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
