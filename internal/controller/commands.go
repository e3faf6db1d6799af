package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/notify"
	"github.com/Freeeeeet/tutoring_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const helpText = "📚 Commands:\n\n" +
	"/mysessions - upcoming sessions\n" +
	"/pending - booking requests waiting for your answer (tutors)\n" +
	"/help - this message\n\n" +
	"Slots are booked in the web app. Requests, confirmations and cancellations arrive here."

func (c *BotController) handleStart(ctx context.Context, m messenger, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	from := update.Message.From

	user, err := c.users.RegisterTelegramUser(ctx, service.TelegramProfile{
		TelegramID: from.ID,
		Username:   from.Username,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	})
	if err != nil {
		c.logger.Error("Failed to register user", zap.Int64("telegram_id", from.ID), zap.Error(err))
		c.send(ctx, m, update.Message.Chat.ID, "❌ Registration failed. Please try again later.")
		return
	}

	c.send(ctx, m, update.Message.Chat.ID, fmt.Sprintf("👋 Hi, %s!\n\n%s", user.DisplayName(), helpText))
}

func (c *BotController) handleHelp(ctx context.Context, m messenger, update *models.Update) {
	if update.Message == nil {
		return
	}
	c.send(ctx, m, update.Message.Chat.ID, helpText)
}

func (c *BotController) handleMySessions(ctx context.Context, m messenger, update *models.Update) {
	user, ok := c.requireUser(ctx, m, update)
	if !ok {
		return
	}

	var (
		sessions []*model.Session
		err      error
	)
	if user.IsTutor {
		sessions, err = c.sessions.ListForTutor(ctx, user.ID, model.SessionStatusPending, model.SessionStatusScheduled)
	} else {
		sessions, err = c.sessions.ListForStudent(ctx, user.ID)
	}
	if err != nil {
		c.logger.Error("Failed to list sessions", zap.Int64("user_id", user.ID), zap.Error(err))
		c.send(ctx, m, update.Message.Chat.ID, "❌ Something went wrong. Please try again later.")
		return
	}

	now := c.now()
	var upcoming []*model.Session
	for _, s := range sessions {
		if s.HoldsSlot() && s.ScheduledEnd.After(now) {
			upcoming = append(upcoming, s)
		}
	}
	if len(upcoming) == 0 {
		c.send(ctx, m, update.Message.Chat.ID, "📭 No upcoming sessions.")
		return
	}

	for _, s := range upcoming {
		c.sendSession(ctx, m, update.Message.Chat.ID, s, cancelKeyboard(s))
	}
}

func (c *BotController) handlePending(ctx context.Context, m messenger, update *models.Update) {
	user, ok := c.requireUser(ctx, m, update)
	if !ok {
		return
	}
	if !user.IsTutor {
		c.send(ctx, m, update.Message.Chat.ID, "❌ This command is for tutors.")
		return
	}

	pending, err := c.sessions.ListPendingForTutor(ctx, user.ID)
	if err != nil {
		c.logger.Error("Failed to list pending sessions", zap.Int64("user_id", user.ID), zap.Error(err))
		c.send(ctx, m, update.Message.Chat.ID, "❌ Something went wrong. Please try again later.")
		return
	}
	if len(pending) == 0 {
		c.send(ctx, m, update.Message.Chat.ID, "✅ No pending requests.")
		return
	}

	for _, s := range pending {
		c.sendSession(ctx, m, update.Message.Chat.ID, s, approvalKeyboard(s))
	}
}

// handleCallback runs the transition behind an inline button.
func (c *BotController) handleCallback(ctx context.Context, m messenger, update *models.Update) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}

	c.logger.Info("Routing callback",
		zap.String("data", cb.Data),
		zap.Int64("telegram_id", cb.From.ID),
	)

	user, err := c.users.GetByTelegramID(ctx, cb.From.ID)
	if err != nil {
		c.answer(ctx, m, cb.ID, errorMessage(err), true)
		return
	}

	answer, err := c.runCallback(ctx, user, cb.Data)
	if err != nil {
		if !isExpected(err) {
			c.logger.Error("Callback failed",
				zap.String("data", cb.Data),
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
		}
		c.answer(ctx, m, cb.ID, errorMessage(err), true)
		return
	}
	c.answer(ctx, m, cb.ID, answer, false)
}

func (c *BotController) runCallback(ctx context.Context, user *model.User, data string) (string, error) {
	prefix, id, err := parseCallback(data)
	if err != nil {
		return "", err
	}

	switch prefix {
	case notify.CallbackAccept:
		if _, err := c.sessions.Accept(ctx, id, user.ID); err != nil {
			return "", err
		}
		return "✅ Session accepted", nil
	case notify.CallbackDecline:
		if _, err := c.sessions.Decline(ctx, id, user.ID, "declined in Telegram"); err != nil {
			return "", err
		}
		return "❌ Request declined", nil
	case notify.CallbackCancel:
		if _, err := c.sessions.Cancel(ctx, id, user.ID, "cancelled in Telegram"); err != nil {
			return "", err
		}
		return "🚫 Session cancelled", nil
	default:
		return "", errInvalidCallback
	}
}

var errInvalidCallback = errors.New("invalid callback data")

// parseCallback splits "session_accept:<uuid>" into its prefix and session id.
func parseCallback(data string) (string, uuid.UUID, error) {
	for _, prefix := range []string{notify.CallbackAccept, notify.CallbackDecline, notify.CallbackCancel} {
		rest, ok := strings.CutPrefix(data, prefix)
		if !ok {
			continue
		}
		id, err := uuid.Parse(rest)
		if err != nil {
			return "", uuid.Nil, errInvalidCallback
		}
		return prefix, id, nil
	}
	return "", uuid.Nil, errInvalidCallback
}

func (c *BotController) requireUser(ctx context.Context, m messenger, update *models.Update) (*model.User, bool) {
	if update.Message == nil || update.Message.From == nil {
		return nil, false
	}

	user, err := c.users.GetByTelegramID(ctx, update.Message.From.ID)
	if err != nil {
		if !errors.Is(err, service.ErrUserNotFound) {
			c.logger.Error("Failed to get user", zap.Int64("telegram_id", update.Message.From.ID), zap.Error(err))
		}
		c.send(ctx, m, update.Message.Chat.ID, errorMessage(err))
		return nil, false
	}
	return user, true
}

func (c *BotController) send(ctx context.Context, m messenger, chatID int64, text string) {
	_, err := m.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		c.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (c *BotController) sendSession(ctx context.Context, m messenger, chatID int64, s *model.Session, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   formatSession(s, c.location),
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	if _, err := m.SendMessage(ctx, params); err != nil {
		c.logger.Error("Failed to send session", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (c *BotController) answer(ctx context.Context, m messenger, callbackID, text string, alert bool) {
	_, err := m.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		c.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}

func approvalKeyboard(s *model.Session) *models.InlineKeyboardMarkup {
	id := s.ID.String()
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Accept", CallbackData: notify.CallbackAccept + id},
				{Text: "❌ Decline", CallbackData: notify.CallbackDecline + id},
			},
		},
	}
}

func cancelKeyboard(s *model.Session) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "🚫 Cancel session", CallbackData: notify.CallbackCancel + s.ID.String()}},
		},
	}
}
