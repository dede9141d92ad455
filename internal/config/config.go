// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for TIMEZONE lookups

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	Port     string
	DBPath   string
	TimeZone string

	GoogleAPIKey string
	LINE         LINEConfig
	Redis        RedisConfig
	Admin        AdminConfig

	Sync       SyncConfig
	Session    SessionConfig
	History    HistoryConfig
	Transcript TranscriptConfig
}

// LINEConfig holds Messaging API credentials.
type LINEConfig struct {
	ChannelSecret string
	AccessToken   string
	AdminUserID   string // optional push target for new-venue notifications
}

// RedisConfig selects the Redis session backend when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
}

// AdminConfig guards the admin API. An empty Token disables it.
type AdminConfig struct {
	Token          string
	AllowedOrigins []string
}

// SyncConfig controls the daily catalog refresh.
type SyncConfig struct {
	OriginQuery  string
	FallbackLat  *float64
	FallbackLng  *float64
	RadiusMeters int
	Types        []string
	MaxPages     int
	PageDelay    time.Duration
	// Cron is a standard five-field schedule evaluated in TimeZone.
	Cron string
}

// SessionConfig controls conversational session lifetime.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// HistoryConfig controls recency exclusion.
type HistoryConfig struct {
	WindowDays int
}

// TranscriptConfig controls the dialogue log. An empty Dir disables it.
type TranscriptConfig struct {
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	fallbackLat, err := getEnvFloatPtr("FALLBACK_LAT")
	if err != nil {
		return nil, err
	}
	fallbackLng, err := getEnvFloatPtr("FALLBACK_LNG")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8000"),
		DBPath:       getEnv("DB_PATH", "./data/lunch.db"),
		TimeZone:     getEnv("TIMEZONE", "Asia/Taipei"),
		GoogleAPIKey: getEnv("GOOGLE_API_KEY", ""),
		LINE: LINEConfig{
			ChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),
			AccessToken:   getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
			AdminUserID:   getEnv("USER_ID_ADMIN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Admin: AdminConfig{
			Token:          getEnv("ADMIN_TOKEN", ""),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		},
		Sync: SyncConfig{
			OriginQuery:  getEnv("ORIGIN_QUERY", "5JJ8+QQ 福和里 台中市西屯區"),
			FallbackLat:  fallbackLat,
			FallbackLng:  fallbackLng,
			RadiusMeters: getEnvInt("RADIUS_METERS", 700),
			Types:        getEnvList("SYNC_TYPES", []string{"restaurant", "cafe", "meal_takeaway"}),
			MaxPages:     getEnvInt("SYNC_MAX_PAGES", 3),
			PageDelay:    getEnvDuration("SYNC_PAGE_DELAY", 2*time.Second),
			Cron:         getEnv("SYNC_CRON", "0 10 * * *"),
		},
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 10*time.Minute),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		History: HistoryConfig{
			WindowDays: getEnvInt("HISTORY_WINDOW_DAYS", 3),
		},
		Transcript: TranscriptConfig{
			Dir:       getEnv("TRANSCRIPT_DIR", ""),
			QueueSize: getEnvInt("TRANSCRIPT_QUEUE_SIZE", 256),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.TimeZone, err)
	}
	if (c.Sync.FallbackLat == nil) != (c.Sync.FallbackLng == nil) {
		return fmt.Errorf("FALLBACK_LAT and FALLBACK_LNG must be set together")
	}
	if c.Sync.RadiusMeters <= 0 {
		return fmt.Errorf("RADIUS_METERS must be > 0")
	}
	if len(c.Sync.Types) == 0 {
		return fmt.Errorf("SYNC_TYPES cannot be empty")
	}
	if c.Sync.MaxPages <= 0 {
		return fmt.Errorf("SYNC_MAX_PAGES must be > 0")
	}
	if _, err := cron.ParseStandard(c.Sync.Cron); err != nil {
		return fmt.Errorf("SYNC_CRON %q: %w", c.Sync.Cron, err)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.History.WindowDays <= 0 {
		return fmt.Errorf("HISTORY_WINDOW_DAYS must be > 0")
	}
	return nil
}

// RequireServerCredentials reports missing secrets needed by the webhook server.
func (c *Config) RequireServerCredentials() error {
	var missing []string
	if c.GoogleAPIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if c.LINE.ChannelSecret == "" {
		missing = append(missing, "LINE_CHANNEL_SECRET")
	}
	if c.LINE.AccessToken == "" {
		missing = append(missing, "LINE_CHANNEL_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s in environment", strings.Join(missing, " / "))
	}
	return nil
}

// Location returns the configured calendar time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvFloatPtr returns nil when the key is unset or empty. Malformed values
// are reported rather than ignored.
func getEnvFloatPtr(key string) (*float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &f, nil
}
