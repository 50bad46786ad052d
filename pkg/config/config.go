package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Market data and calendars
	Prices   PriceConfig
	Holidays HolidayConfig
	HTTP     HTTPConfig

	// Evaluation engine
	Engine EngineConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	Prefix   string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PriceConfig controls where cached price records are read from
type PriceConfig struct {
	Source            string   // memory, redis, postgres, cached (redis in front of postgres)
	FallbackExchanges []string // ordered exchange suffixes tried after the exact ticker
	UseAdjusted       bool     // use adjusted close instead of close for fixings
	CacheTTL          time.Duration

	// Circuit breaker around the price store
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// HolidayConfig holds the market holiday calendar source
type HolidayConfig struct {
	URL      string // exchange holiday page; empty means weekend-only calendar
	Selector string // CSS selector of the date cells
	Layout   string // time layout of the date cells
	Static   []string
}

// HTTPConfig bounds outbound requests (holiday pages)
type HTTPConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	MaxBodyBytes int
	UserAgent    string
}

// EngineConfig holds evaluation engine tuning
type EngineConfig struct {
	PaymentLagDays    int
	DedupWindow       time.Duration
	YieldEvery        int
	DetectionSchedule string // cron expression for the event detection job
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "notes"),
			User:            getEnv("DB_USER", "notes"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Prefix:   getEnv("REDIS_PREFIX", "notes"),
		},

		Prices: PriceConfig{
			Source:            getEnv("PRICE_SOURCE", "cached"),
			FallbackExchanges: getEnvAsList("PRICE_FALLBACK_EXCHANGES", "US,PA,DE,LSE,CO"),
			UseAdjusted:       getEnvAsBool("PRICE_USE_ADJUSTED", false),
			CacheTTL:          getEnvAsDuration("PRICE_CACHE_TTL", "10m"),
			BreakerFailures:   getEnvAsInt("PRICE_BREAKER_FAILURES", 5),
			BreakerTimeout:    getEnvAsDuration("PRICE_BREAKER_TIMEOUT", "30s"),
		},

		Holidays: HolidayConfig{
			URL:      getEnv("HOLIDAY_CALENDAR_URL", ""),
			Selector: getEnv("HOLIDAY_CALENDAR_SELECTOR", "table.holidays td.date"),
			Layout:   getEnv("HOLIDAY_CALENDAR_LAYOUT", "2006-01-02"),
			Static:   getEnvAsList("HOLIDAYS", ""),
		},

		HTTP: HTTPConfig{
			Timeout:      getEnvAsDuration("HTTP_TIMEOUT", "15s"),
			MaxRetries:   getEnvAsInt("HTTP_MAX_RETRIES", 2),
			MaxBodyBytes: getEnvAsInt("HTTP_MAX_BODY_BYTES", 2<<20),
			UserAgent:    getEnv("HTTP_USER_AGENT", "notes-engine/1.0"),
		},

		Engine: EngineConfig{
			PaymentLagDays:    getEnvAsInt("PAYMENT_LAG_DAYS", 5),
			DedupWindow:       getEnvAsDuration("EVENT_DEDUP_WINDOW", "24h"),
			YieldEvery:        getEnvAsInt("ENGINE_YIELD_EVERY", 50),
			DetectionSchedule: getEnv("EVENT_DETECTION_SCHEDULE", "0 */15 * * * *"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required unless prices come from memory or redis only
	if c.Database.URL == "" && (c.Prices.Source == "postgres" || c.Prices.Source == "cached") {
		return fmt.Errorf("DATABASE_URL is required for PRICE_SOURCE=%s", c.Prices.Source)
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Prices.Source {
	case "memory", "redis", "postgres", "cached":
	default:
		return fmt.Errorf("PRICE_SOURCE must be one of: memory, redis, postgres, cached")
	}

	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("HTTP_MAX_RETRIES must not be negative")
	}

	if c.Engine.PaymentLagDays < 0 {
		return fmt.Errorf("PAYMENT_LAG_DAYS must not be negative")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	items := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
