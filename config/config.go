package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	AppMode       string
	LogMode       string
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	DBMaxOpen     int
	JWTSecret     string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	OTelEndpoint  string

	Email     EmailConfig
	Command   CommandConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
}

type EmailConfig struct {
	BaseURL      string
	Sender       string
	AuthToken    string
	Timeout      time.Duration
	SendRate     float64
	BreakerTrips uint32
}

type CommandConfig struct {
	Timeout      time.Duration
	RedirectPath string
}

// RateLimitConfig bounds how many publish requests one actor may submit per
// window. A zero limit disables the check.
type RateLimitConfig struct {
	PublishLimit  int
	PublishWindow time.Duration
}

type WorkerConfig struct {
	Replicas       int
	PollInterval   time.Duration
	ErrorBackoff   time.Duration
	RetryInitial   time.Duration
	RetryMax       time.Duration
	WakeupsEnabled bool
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AppMode:       getEnv("APP_MODE", "debug"),
		LogMode:       getEnv("LOG_MODE", "development"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "newsletter"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBMaxOpen:     getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		OTelEndpoint:  getEnv("OTEL_ENDPOINT", ""),
		Email: EmailConfig{
			BaseURL:      getEnv("EMAIL_BASE_URL", "http://localhost:8025"),
			Sender:       getEnv("EMAIL_SENDER", "newsletter@example.com"),
			AuthToken:    getEnv("EMAIL_AUTH_TOKEN", ""),
			Timeout:      getEnvAsMillis("EMAIL_TIMEOUT_MS", 10*time.Second),
			SendRate:     getEnvAsFloat("WORKER_SEND_RATE", 0),
			BreakerTrips: uint32(getEnvAsInt("EMAIL_BREAKER_TRIPS", 5)),
		},
		Command: CommandConfig{
			Timeout:      getEnvAsMillis("COMMAND_TIMEOUT_MS", 5*time.Second),
			RedirectPath: getEnv("COMMAND_REDIRECT_PATH", "/admin/newsletters"),
		},
		Worker: WorkerConfig{
			Replicas:       getEnvAsInt("WORKER_REPLICAS", 1),
			PollInterval:   getEnvAsMillis("WORKER_POLL_INTERVAL_MS", 10*time.Second),
			ErrorBackoff:   getEnvAsMillis("WORKER_ERROR_BACKOFF_MS", time.Second),
			RetryInitial:   getEnvAsMillis("WORKER_RETRY_INITIAL_MS", time.Second),
			RetryMax:       getEnvAsMillis("WORKER_RETRY_MAX_MS", 10*time.Minute),
			WakeupsEnabled: getEnvAsBool("WORKER_WAKEUPS", true),
		},
		RateLimit: RateLimitConfig{
			PublishLimit:  getEnvAsInt("RATE_LIMIT_PUBLISH", 30),
			PublishWindow: getEnvAsMillis("RATE_LIMIT_WINDOW_MS", time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsMillis(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value >= 0 {
		return time.Duration(value) * time.Millisecond
	}
	return fallback
}
