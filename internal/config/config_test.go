package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DSN", "postgres://localhost/tutoring")
	t.Setenv("ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "migrations", cfg.MigrationsPath)
	assert.Equal(t, 2*time.Hour, cfg.CancelLeadTime)
	assert.Equal(t, 10*time.Second, cfg.ExternalCallTimeout)
	assert.Equal(t, time.Hour, cfg.CalendarSyncInterval)
	assert.Equal(t, 336*time.Hour, cfg.CalendarSyncHorizon)
	assert.True(t, cfg.RequireEndedBeforeComplete)
	assert.Equal(t, "America/Bogota", cfg.Timezone.String())
	assert.False(t, cfg.EnvFileLoaded)
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DSN", "postgres://localhost/tutoring")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CANCEL_LEAD_TIME", "90m")
	t.Setenv("REQUIRE_ENDED_BEFORE_COMPLETE", "false")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 90*time.Minute, cfg.CancelLeadTime)
	assert.False(t, cfg.RequireEndedBeforeComplete)
	assert.Equal(t, time.UTC, cfg.Timezone)
}

func TestLoad_Errors(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DSN", "")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CANCEL_LEAD_TIME", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "DB_DSN is required")
	assert.ErrorContains(t, err, "JWT_SECRET is required")
	assert.ErrorContains(t, err, "CANCEL_LEAD_TIME")
}
