package controller

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/service"
)

type statusDisplay struct {
	Emoji string
	Text  string
}

func sessionStatusDisplay(status model.SessionStatus) statusDisplay {
	displays := map[model.SessionStatus]statusDisplay{
		model.SessionStatusPending:   {"⏳", "Waiting for the tutor"},
		model.SessionStatusScheduled: {"✅", "Scheduled"},
		model.SessionStatusCompleted: {"✔️", "Completed"},
		model.SessionStatusCancelled: {"❌", "Cancelled"},
		model.SessionStatusDeclined:  {"🚫", "Declined"},
	}

	if display, ok := displays[status]; ok {
		return display
	}
	return statusDisplay{"❓", "Unknown"}
}

// formatPrice renders cents with two decimals, dropping them when zero.
func formatPrice(cents int) string {
	if cents%100 == 0 {
		return fmt.Sprintf("$%d", cents/100)
	}
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

func formatTimeRange(start, end time.Time) string {
	return fmt.Sprintf("%s %s-%s", start.Format("Mon 02.01.2006"), start.Format("15:04"), end.Format("15:04"))
}

func formatSession(s *model.Session, loc *time.Location) string {
	display := sessionStatusDisplay(s.Status)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", display.Emoji, s.Course)
	fmt.Fprintf(&b, "🕐 %s\n", formatTimeRange(s.ScheduledStart.In(loc), s.ScheduledEnd.In(loc)))
	if s.Location != "" {
		fmt.Fprintf(&b, "📍 %s\n", s.Location)
	}
	if s.Price > 0 {
		fmt.Fprintf(&b, "💰 %s\n", formatPrice(s.Price))
	}
	fmt.Fprintf(&b, "📊 %s", display.Text)
	if s.Notes != "" {
		fmt.Fprintf(&b, "\n📝 %s", s.Notes)
	}
	return b.String()
}

// isExpected reports whether err is a business rejection rather than a failure.
func isExpected(err error) bool {
	return errors.Is(err, errInvalidCallback) ||
		errors.Is(err, service.ErrInvalidInput) ||
		errors.Is(err, service.ErrUnauthorized) ||
		errors.Is(err, service.ErrInvalidStateTransition) ||
		errors.Is(err, service.ErrTooLateToCancel) ||
		service.IsNotFound(err)
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return "❌ Account not linked. Send /start first"
	case errors.Is(err, service.ErrSessionNotFound):
		return "❌ Session not found"
	case errors.Is(err, service.ErrUnauthorized):
		return "❌ This session is not yours to change"
	case errors.Is(err, service.ErrInvalidStateTransition):
		return "❌ The session was already answered or closed"
	case errors.Is(err, service.ErrTooLateToCancel):
		return "⏰ Too late to cancel this session"
	case errors.Is(err, errInvalidCallback):
		return "❌ Invalid button data"
	default:
		return "❌ Something went wrong"
	}
}
