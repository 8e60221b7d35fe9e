package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigDefaults(t *testing.T) {
	t.Setenv("TRACKLY_ENV", Test)
	Reset()
	t.Cleanup(Reset)

	cfg := GetConfig()

	assert.Equal(t, "trackly", cfg.AppName)
	assert.Equal(t, MissingSessionExclude, cfg.MissingSessionPolicy)
	assert.Equal(t, 0, cfg.EventRetentionDays)
	assert.False(t, cfg.RetentionEnabled())
	assert.Equal(t, 7, cfg.DefaultDailyDays)
	assert.Equal(t, 30, cfg.DefaultReportDays)
	assert.Equal(t, 10, cfg.DefaultTopLimit)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 60, cfg.ReportCacheTTLSeconds)
	assert.Equal(t, "storage/trackly-test.db", cfg.DatabaseDSN())
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
	assert.True(t, cfg.IsTest())
}

func TestGetConfigFromEnvironment(t *testing.T) {
	t.Setenv("TRACKLY_ENV", Test)
	t.Setenv("TRACKLY_MISSING_SESSION_POLICY", MissingSessionSingleton)
	t.Setenv("TRACKLY_EVENT_RETENTION_DAYS", "90")
	t.Setenv("TRACKLY_EVENT_NAMES", "signup,purchase")
	t.Setenv("TRACKLY_DB_MAX_OPEN_CONNS", "4")
	Reset()
	t.Cleanup(Reset)

	cfg := GetConfig()

	assert.Equal(t, MissingSessionSingleton, cfg.MissingSessionPolicy)
	assert.Equal(t, 90, cfg.EventRetentionDays)
	assert.True(t, cfg.RetentionEnabled())
	assert.Equal(t, []string{"signup", "purchase"}, cfg.ExtraEventNames)
	assert.Equal(t, 4, cfg.GetMaxOpenConns())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:          Development,
			DatabaseType:         SQLiteDatabase,
			MissingSessionPolicy: MissingSessionExclude,
			DefaultDailyDays:     7,
			DefaultReportDays:    30,
			DefaultTopLimit:      10,
			MaxWindowDays:        3650,
			MaxLimit:             1000,
			QueryWorkers:         4,
			JobIntervalSeconds:   60,
		}
	}

	require.NoError(t, valid().validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown environment", func(c *Config) { c.Environment = "staging" }},
		{"unknown database", func(c *Config) { c.DatabaseType = "postgres" }},
		{"unknown session policy", func(c *Config) { c.MissingSessionPolicy = "merge" }},
		{"negative retention", func(c *Config) { c.EventRetentionDays = -1 }},
		{"zero default limit", func(c *Config) { c.DefaultTopLimit = 0 }},
		{"cache without ttl", func(c *Config) { c.RedisAddr = "localhost:6379" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.validate())
		})
	}
}
