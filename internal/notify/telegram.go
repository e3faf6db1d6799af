package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Callback data prefixes understood by the bot controller. The session id follows the prefix.
const (
	CallbackAccept  = "session_accept:"
	CallbackDecline = "session_decline:"
	CallbackCancel  = "session_cancel:"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier messages every recipient linked to a Telegram account.
type TelegramNotifier struct {
	bot      messageSender
	location *time.Location
}

func NewTelegramNotifier(b messageSender, location *time.Location) *TelegramNotifier {
	return &TelegramNotifier{bot: b, location: location}
}

func (t *TelegramNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, r := range n.Recipients {
		if r.TelegramID == nil {
			continue
		}

		params := &bot.SendMessageParams{
			ChatID: *r.TelegramID,
			Text:   n.Text(t.location),
		}
		if keyboard := keyboardFor(n, r); keyboard != nil {
			params.ReplyMarkup = keyboard
		}

		if _, err := t.bot.SendMessage(ctx, params); err != nil {
			errs = append(errs, fmt.Errorf("telegram user %d: %w", r.UserID, err))
		}
	}
	return errors.Join(errs...)
}

func keyboardFor(n Notification, r Recipient) *models.InlineKeyboardMarkup {
	id := n.SessionID.String()

	switch {
	case n.Kind == KindSessionPending && r.Role == RoleTutor:
		return &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{
					{Text: "✅ Accept", CallbackData: CallbackAccept + id},
					{Text: "❌ Decline", CallbackData: CallbackDecline + id},
				},
			},
		}
	case n.Kind == KindSessionScheduled, n.Kind == KindSessionAccepted, n.Kind == KindSessionRescheduled:
		return &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "🚫 Cancel session", CallbackData: CallbackCancel + id}},
			},
		}
	default:
		return nil
	}
}
