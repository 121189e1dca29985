package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)
	req.Equal(8080, cfg.Port)
	req.Equal("ru", cfg.DefaultLanguage)
	req.Equal(StoreBadger, cfg.BookingStore)
	req.Equal(30*time.Minute, cfg.ReminderInterval)
	req.Equal(24*time.Hour, cfg.ReminderLead)
	req.Equal(time.Hour, cfg.ReminderTolerance)
	req.Empty(cfg.Origins())
}

func TestLoadOverrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_LANGUAGE", "EN")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("REMINDER_INTERVAL", "5m")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(9090, cfg.Port)
	req.Equal("en", cfg.DefaultLanguage)
	req.Equal([]string{"http://a.test", "http://b.test"}, cfg.Origins())
	req.Equal(5*time.Minute, cfg.ReminderInterval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unsupported default language", mutate: func(c *Config) { c.DefaultLanguage = "xx" }},
		{name: "unknown store", mutate: func(c *Config) { c.BookingStore = "mongo" }},
		{name: "tolerance wider than lead", mutate: func(c *Config) { c.ReminderTolerance = 25 * time.Hour }},
		{name: "minio without bucket", mutate: func(c *Config) { c.MinioEnabled = true }},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func validConfig() Config {
	return Config{
		Port:              8080,
		DefaultLanguage:   "ru",
		SendBufferSize:    16,
		BookingStore:      StoreBadger,
		ReminderInterval:  30 * time.Minute,
		ReminderLead:      24 * time.Hour,
		ReminderTolerance: time.Hour,
		Timezone:          "UTC",
	}
}
