package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string // API bind address, e.g. "127.0.0.1:8080" or ":8080" in a container
	LogDir   string
	LogLevel string

	// polling engine
	PollInterval    time.Duration
	PollTick        time.Duration
	ShutdownTimeout time.Duration
	CheckTimeout    time.Duration
	MaxConcurrent   int

	// Resy upstream
	ResyAPIKey     string
	UserAgent      string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	ResyRPS        float64
	ResyBurst      int

	// notifications
	DiscordWebhookURL string
	SlackWebhookURL   string

	// HTTP surface
	PublicAPIKeys  []string
	AdminAPIKeys   []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
	AllowedOrigins []string
}

// FromEnv reads configuration from the process environment. A .env file in
// the working directory is loaded first when present; real env vars win.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Addr:     str("API_ADDR", "127.0.0.1:8080"),
		LogDir:   str("LOG_DIR", "logs"),
		LogLevel: str("LOG_LEVEL", "info"),

		PollInterval:    seconds("POLL_INTERVAL_SEC", 120),
		PollTick:        millis("POLL_TICK_MS", 1000),
		ShutdownTimeout: millis("SHUTDOWN_TIMEOUT_MS", 3000),
		CheckTimeout:    seconds("CHECK_TIMEOUT_SEC", 90),
		MaxConcurrent:   positive("MAX_CONCURRENT_CHECKS", 4),

		ResyAPIKey:     os.Getenv("RESY_API_KEY"),
		UserAgent:      os.Getenv("USER_AGENT"),
		RequestTimeout: millis("REQUEST_TIMEOUT_MS", 12000),
		MaxRetries:     positive("RESY_MAX_RETRIES", 3),
		RetryBackoff:   millis("RESY_BACKOFF_MS", 700),
		ResyRPS:        float("RESY_RPS", 2),
		ResyBurst:      positive("RESY_BURST", 4),

		DiscordWebhookURL: strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK_URL")),
		SlackWebhookURL:   strings.TrimSpace(os.Getenv("SLACK_WEBHOOK_URL")),

		PublicAPIKeys:  list("PUBLIC_API_KEYS"),
		AdminAPIKeys:   list("ADMIN_API_KEYS"),
		PublicRPM:      nonNegative("PUBLIC_RPM", 120),
		PublicBurst:    nonNegative("PUBLIC_BURST", 60),
		AdminRPM:       nonNegative("ADMIN_RPM", 30),
		AdminBurst:     nonNegative("ADMIN_BURST", 10),
		AllowedOrigins: list("ALLOWED_ORIGINS"),
	}
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positive(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

// nonNegative accepts 0, which disables the matching limiter.
func nonNegative(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func float(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f > 0 {
		return f
	}
	return def
}

func seconds(key string, def int) time.Duration {
	return time.Duration(positive(key, def)) * time.Second
}

func millis(key string, def int) time.Duration {
	return time.Duration(positive(key, def)) * time.Millisecond
}

func list(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
