package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Freeeeeet/tutoring_scheduler/internal/service"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const (
	CodeInvalidInput           = "INVALID_INPUT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeSlotAlreadyBooked      = "SLOT_ALREADY_BOOKED"
	CodeSlotUnavailable        = "SLOT_UNAVAILABLE"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeTooLateToCancel        = "TOO_LATE_TO_CANCEL"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeExpiredToken           = "EXPIRED_TOKEN"
	CodeInternalError          = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// statusFor maps service errors onto HTTP statuses and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, CodeForbidden
	case service.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, service.ErrSlotAlreadyBooked):
		return http.StatusConflict, CodeSlotAlreadyBooked
	case errors.Is(err, service.ErrSlotUnavailable):
		return http.StatusConflict, CodeSlotUnavailable
	case errors.Is(err, service.ErrTooLateToCancel):
		return http.StatusUnprocessableEntity, CodeTooLateToCancel
	case errors.Is(err, service.ErrInvalidStateTransition):
		return http.StatusUnprocessableEntity, CodeInvalidStateTransition
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, "internal error", code)
		return
	}
	writeError(w, status, err.Error(), code)
}
