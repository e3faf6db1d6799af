package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment    string
	DBDSN          string
	HTTPAddr       string
	JWTSecret      string
	TelegramToken  string
	NATSURL        string
	MigrationsPath string

	MailerSendAPIKey string
	MailerFrom       string
	MailerFromName   string

	Timezone *time.Location

	CancelLeadTime             time.Duration
	RequireEndedBeforeComplete bool
	ExternalCallTimeout        time.Duration
	CalendarSyncInterval       time.Duration
	CalendarSyncHorizon        time.Duration

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	loaded := godotenv.Load(".env") == nil

	cfg := &Config{
		Environment:    getEnv("ENV", "development"),
		DBDSN:          os.Getenv("DB_DSN"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		NATSURL:        os.Getenv("NATS_URL"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		MailerSendAPIKey: os.Getenv("MAILERSEND_API_KEY"),
		MailerFrom:       os.Getenv("MAILER_FROM"),
		MailerFromName:   getEnv("MAILER_FROM_NAME", "Tutoring"),

		EnvFileLoaded: loaded,
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.CancelLeadTime, err = getDuration("CANCEL_LEAD_TIME", 2*time.Hour)
	collect(err)
	cfg.ExternalCallTimeout, err = getDuration("EXTERNAL_CALL_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.CalendarSyncInterval, err = getDuration("CALENDAR_SYNC_INTERVAL", time.Hour)
	collect(err)
	cfg.CalendarSyncHorizon, err = getDuration("CALENDAR_SYNC_HORIZON", 14*24*time.Hour)
	collect(err)
	cfg.RequireEndedBeforeComplete, err = getBool("REQUIRE_ENDED_BEFORE_COMPLETE", true)
	collect(err)

	tz := getEnv("TIMEZONE", "America/Bogota")
	cfg.Timezone, err = time.LoadLocation(tz)
	if err != nil {
		collect(fmt.Errorf("TIMEZONE: %w", err))
	}

	if cfg.DBDSN == "" {
		collect(errors.New("DB_DSN is required but not set"))
	}
	if cfg.JWTSecret == "" && !cfg.IsDevelopment() {
		collect(errors.New("JWT_SECRET is required outside development"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}
