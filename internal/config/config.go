package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"consultation-relay/internal/language"
)

// Booking store backends.
const (
	StorePostgres = "postgres"
	StoreBadger   = "badger"
)

type Config struct {
	Port            int    `env:"PORT,default=8080"`
	LogLevel        string `env:"LOG_LEVEL,default=INFO"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE,default=ru"`
	AllowedOrigins  string `env:"ALLOWED_ORIGINS"`
	SendBufferSize  int    `env:"SEND_BUFFER_SIZE,default=64"`
	TranscriptLimit int    `env:"TRANSCRIPT_LIMIT,default=500"`

	TranslationBaseURL  string        `env:"TRANSLATION_BASE_URL"`
	TranslationTimeout  time.Duration `env:"TRANSLATION_TIMEOUT,default=10s"`
	TranslationCacheTTL time.Duration `env:"TRANSLATION_CACHE_TTL,default=10m"`

	BookingStore string `env:"BOOKING_STORE,default=badger"`
	BadgerPath   string `env:"BADGER_PATH,default=./data/bookings"`
	DBHost       string `env:"DB_HOST,default=localhost"`
	DBPort       string `env:"DB_PORT,default=5432"`
	DBUser       string `env:"DB_USER,default=consultation"`
	DBPassword   string `env:"DB_PASSWORD,default=consultation_pass"`
	DBName       string `env:"DB_NAME,default=consultation"`

	ReminderInterval  time.Duration `env:"REMINDER_INTERVAL,default=30m"`
	ReminderLead      time.Duration `env:"REMINDER_LEAD,default=24h"`
	ReminderTolerance time.Duration `env:"REMINDER_TOLERANCE,default=1h"`
	Timezone          string        `env:"TIMEZONE,default=Local"`
	NotifierURL       string        `env:"NOTIFIER_URL"`
	RedisAddr         string        `env:"REDIS_ADDR"`

	MinioEnabled  bool   `env:"MINIO_ENABLED,default=false"`
	MinioEndpoint string `env:"MINIO_ENDPOINT"`
	MinioUser     string `env:"MINIO_ROOT_USER"`
	MinioPassword string `env:"MINIO_ROOT_PASSWORD"`
	MinioBucket   string `env:"MINIO_BUCKET"`
	MinioUseSSL   bool   `env:"MINIO_USE_SSL,default=false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the struct tags cannot express.
func (c *Config) Validate() error {
	invalid := make([]string, 0, 4)

	if c.Port <= 0 {
		invalid = append(invalid, "PORT")
	}
	c.DefaultLanguage = language.Normalize(c.DefaultLanguage)
	if !language.IsSupported(c.DefaultLanguage) {
		invalid = append(invalid, "DEFAULT_LANGUAGE")
	}
	if c.SendBufferSize <= 0 {
		invalid = append(invalid, "SEND_BUFFER_SIZE")
	}
	if c.BookingStore != StorePostgres && c.BookingStore != StoreBadger {
		invalid = append(invalid, "BOOKING_STORE")
	}
	if c.ReminderInterval <= 0 {
		invalid = append(invalid, "REMINDER_INTERVAL")
	}
	if c.ReminderTolerance < 0 || c.ReminderTolerance >= c.ReminderLead {
		invalid = append(invalid, "REMINDER_TOLERANCE")
	}
	if _, err := c.Location(); err != nil {
		invalid = append(invalid, "TIMEZONE")
	}
	if c.MinioEnabled && (c.MinioEndpoint == "" || c.MinioUser == "" || c.MinioPassword == "" || c.MinioBucket == "") {
		invalid = append(invalid, "MINIO_*")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Location resolves the time zone bookings are expressed in.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "Local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// PostgresDSN builds a lib/pq connection string.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
	)
}

// Origins splits ALLOWED_ORIGINS; an empty result allows every origin.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
