package controller

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type userDirectory interface {
	RegisterTelegramUser(ctx context.Context, p service.TelegramProfile) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

type sessionLifecycle interface {
	Accept(ctx context.Context, sessionID uuid.UUID, tutorID int64) (*service.TransitionResult, error)
	Decline(ctx context.Context, sessionID uuid.UUID, tutorID int64, reason string) (*service.TransitionResult, error)
	Cancel(ctx context.Context, sessionID uuid.UUID, actorID int64, reason string) (*service.TransitionResult, error)
	ListForStudent(ctx context.Context, studentID int64) ([]*model.Session, error)
	ListForTutor(ctx context.Context, tutorID int64, statuses ...model.SessionStatus) ([]*model.Session, error)
	ListPendingForTutor(ctx context.Context, tutorID int64) ([]*model.Session, error)
}

// messenger is the part of *bot.Bot the handlers talk to.
type messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

type BotController struct {
	bot      *bot.Bot
	users    userDirectory
	sessions sessionLifecycle
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	users userDirectory,
	sessions sessionLifecycle,
	location *time.Location,
	logger *zap.Logger,
) *BotController {
	if location == nil {
		location = time.UTC
	}
	return &BotController{
		bot:      botInstance,
		users:    users,
		sessions: sessions,
		location: location,
		now:      time.Now,
		logger:   logger,
	}
}

type handlerFunc func(ctx context.Context, m messenger, update *models.Update)

func wrap(fn handlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		fn(ctx, b, update)
	}
}

// RegisterHandlers registers commands and inline button callbacks.
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, wrap(c.handleStart))
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, wrap(c.handleHelp))
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/mysessions", bot.MatchTypeExact, wrap(c.handleMySessions))
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/pending", bot.MatchTypeExact, wrap(c.handlePending))

	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "session_", bot.MatchTypePrefix, wrap(c.handleCallback))

	return c.setCommands(ctx)
}

func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Link your account"},
		{Command: "help", Description: "❓ Command reference"},
		{Command: "mysessions", Description: "📅 Upcoming sessions"},
		{Command: "pending", Description: "⏳ Requests waiting for you (tutors)"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start blocks until ctx is done.
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}
