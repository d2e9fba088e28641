package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Report dispatcher names accepted in REPORT_DISPATCHERS.
const (
	DispatcherLog   = "log"
	DispatcherRedis = "redis"
	DispatcherKafka = "kafka"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string

	// RedisURL empty means the exam store and the live monitor stay in memory.
	RedisURL string
	// DatabaseURL empty disables the result archive.
	DatabaseURL string
	MaxDBConns  int32

	JWTSecret       string
	SessionTokenTTL time.Duration
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string

	ReportDispatchers []string
	KafkaBrokers      []string
	KafkaReportTopic  string
	// ExaminerEmail receives reports for exams configured without a contact.
	ExaminerEmail string

	TickInterval     time.Duration
	SessionRetention time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	ArchiveResults   bool

	// ProctorServerURL is used by the terminal client.
	ProctorServerURL string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		GinMode:           getEnv("GIN_MODE", "debug"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
		RedisURL:          os.Getenv("REDIS_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		MaxDBConns:        int32(getEnvInt("MAX_DB_CONNS", 8)),
		JWTSecret:         getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		SessionTokenTTL:   time.Duration(getEnvInt("SESSION_TOKEN_TTL_MINUTES", 240)) * time.Minute,
		AllowedOrigins:    parseList(getEnv("ALLOWED_ORIGINS", "")),
		ReportDispatchers: parseList(getEnv("REPORT_DISPATCHERS", DispatcherLog)),
		KafkaBrokers:      parseList(getEnv("KAFKA_BROKERS", "")),
		KafkaReportTopic:  getEnv("KAFKA_REPORT_TOPIC", "exam.results"),
		ExaminerEmail:     getEnv("EXAMINER_EMAIL", ""),
		TickInterval:      time.Duration(getEnvInt("TICK_INTERVAL_MS", 1000)) * time.Millisecond,
		SessionRetention:  time.Duration(getEnvInt("SESSION_RETENTION_MINUTES", 60)) * time.Minute,
		RateLimitRPS:      getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 40),
		ArchiveResults:    getEnvBool("ARCHIVE_RESULTS", true),
		ProctorServerURL:  getEnv("PROCTOR_SERVER_URL", "http://localhost:8080"),
	}
}

// HasDispatcher reports whether name is listed in REPORT_DISPATCHERS.
func (c *Config) HasDispatcher(name string) bool {
	for _, d := range c.ReportDispatchers {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// parseList splits a comma-separated string into a trimmed slice.
// Returns nil if the input is empty.
func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
