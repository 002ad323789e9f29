package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FeedDriverMemory = "memory"
	FeedDriverNats   = "nats"

	// FeedSourceApp emits inserts from the gorm callback chain after commit.
	FeedSourceApp = "app"
	// FeedSourcePostgres relays inserts from database triggers over LISTEN/NOTIFY.
	FeedSourcePostgres = "postgres"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Feed     FeedConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Port                string
	Environment         string
	LogFilePath         string
	RealtimeLogFilePath string
	CorsAllowedOrigins  string
	NatsURL             string
	RedisURL            string
	OtelEnabled         bool
}

type DatabaseConfig struct {
	Connection string
}

type AuthConfig struct {
	JwtSecret string
}

type FeedConfig struct {
	Driver string // "memory" or "nats"
	Source string // "app" or "postgres"
}

type ChatConfig struct {
	ReconcileTolerance time.Duration
	SessionIdleTTL     time.Duration
	ProfileCacheTTL    time.Duration
	SearchMinLength    int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	cfg := &Config{
		App: AppConfig{
			Port:                getEnv("APP_PORT", "3000"),
			Environment:         getEnv("GO_ENV", "development"),
			LogFilePath:         getEnv("LOG_FILE_PATH", "logs/app.log"),
			RealtimeLogFilePath: getEnv("REALTIME_LOG_FILE_PATH", "logs/realtime.log"),
			CorsAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:             getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
			OtelEnabled:         getEnvAsBool("OTEL_ENABLED", false),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
		Feed: FeedConfig{
			Driver: oneOf("CHANGEFEED_DRIVER", FeedDriverMemory, FeedDriverNats),
			Source: oneOf("CHANGEFEED_SOURCE", FeedSourceApp, FeedSourcePostgres),
		},
		Chat: ChatConfig{
			ReconcileTolerance: getEnvAsDuration("RECONCILE_TOLERANCE", 5*time.Second),
			SessionIdleTTL:     getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
			ProfileCacheTTL:    getEnvAsDuration("PROFILE_CACHE_TTL", 10*time.Minute),
			SearchMinLength:    getEnvAsInt("SEARCH_MIN_LENGTH", 2),
		},
	}

	if cfg.Auth.JwtSecret == "" {
		log.Println("[WARN] JWT_SECRET is empty, every token will be rejected")
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("5s", "30m"); non-positive values fall back.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil && value > 0 {
		return value
	}
	return fallback
}

// oneOf returns the env value when it is one of allowed, else allowed[0].
func oneOf(key string, allowed ...string) string {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, allowed[0])))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	log.Printf("[WARN] Unknown %s=%q, using %q", key, value, allowed[0])
	return allowed[0]
}
