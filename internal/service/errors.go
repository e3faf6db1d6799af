package service

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrSessionNotFound        = errors.New("session not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrAvailabilityNotFound   = errors.New("availability not found")
	ErrSlotAlreadyBooked      = errors.New("slot already booked")
	ErrSlotUnavailable        = errors.New("slot unavailable")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTooLateToCancel        = errors.New("too late to cancel")
)

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAvailabilityNotFound)
}
