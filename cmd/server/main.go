package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutoring_scheduler/internal/app"
	"github.com/Freeeeeet/tutoring_scheduler/internal/calendar"
	"github.com/Freeeeeet/tutoring_scheduler/internal/config"
	"github.com/Freeeeeet/tutoring_scheduler/internal/controller"
	"github.com/Freeeeeet/tutoring_scheduler/internal/controller/api"
	"github.com/Freeeeeet/tutoring_scheduler/internal/notify"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository"
	"github.com/Freeeeeet/tutoring_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting tutoring scheduler",
		zap.String("environment", cfg.Environment),
		zap.Bool("env_file", cfg.EnvFileLoaded),
		zap.String("timezone", cfg.Timezone.String()),
	)

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		return err
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	store := repository.NewStore(pool)
	provider := calendar.NewGoogleProvider(logger)

	var tgBot *bot.Bot
	if cfg.TelegramToken != "" {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("TELEGRAM_TOKEN is empty, bot and Telegram notifications disabled")
	}

	sinks := notify.Multi{}
	if tgBot != nil {
		sinks = append(sinks, notify.NewTelegramNotifier(tgBot, cfg.Timezone))
	}
	if cfg.NATSURL != "" {
		conn, err := notify.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer conn.Drain()
		sinks = append(sinks, notify.NewNATSNotifier(conn, logger))
	}
	if email := notify.NewEmailNotifier(cfg.MailerSendAPIKey, cfg.MailerFromName, cfg.MailerFrom, cfg.Timezone); email.Enabled {
		sinks = append(sinks, email)
	}
	dispatcher := notify.NewDispatcher(sinks, cfg.ExternalCallTimeout, logger)
	defer dispatcher.Wait()

	policy := service.DefaultPolicy()
	policy.CancelLeadTime = cfg.CancelLeadTime
	policy.RequireEndedBeforeComplete = cfg.RequireEndedBeforeComplete
	policy.ExternalTimeout = cfg.ExternalCallTimeout

	ledger := service.NewBookingLedger(store, logger)
	users := service.NewUserService(store.Users(), logger)
	sessions := service.NewSessionService(store, ledger, provider, dispatcher, policy, logger)
	availability := service.NewAvailabilityService(store, ledger, provider, cfg.ExternalCallTimeout, logger)
	joint := service.NewJointAvailability(store, ledger, logger)

	handler := api.NewHandler(sessions, availability, joint, api.NewAuthenticator(cfg.JWTSecret), api.Options{
		Location:    cfg.Timezone,
		SyncHorizon: cfg.CalendarSyncHorizon,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	scheduler := app.NewScheduler(availability, cfg.CalendarSyncInterval, cfg.CalendarSyncHorizon, logger)

	g, gctx := errgroup.WithContext(ctx)
	scheduler.Start(gctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		scheduler.Stop()
		return srv.Shutdown(shutdownCtx)
	})

	if tgBot != nil {
		botController := controller.NewBotController(tgBot, users, sessions, cfg.Timezone, logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		g.Go(func() error {
			return botController.Start(gctx)
		})
	}

	return g.Wait()
}
