package config

import (
	"testing"
	"time"
)

func TestFromEnv_ParsesValues(t *testing.T) {
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("LOG_DIR", "./_testlogs")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PUBLIC_API_KEYS", "pub_a, pub_b,")
	t.Setenv("ADMIN_API_KEYS", "adm_x")
	t.Setenv("POLL_INTERVAL_SEC", "30")
	t.Setenv("POLL_TICK_MS", "250")
	t.Setenv("CHECK_TIMEOUT_SEC", "10")
	t.Setenv("MAX_CONCURRENT_CHECKS", "7")
	t.Setenv("RESY_API_KEY", "k123")
	t.Setenv("RESY_MAX_RETRIES", "5")
	t.Setenv("RESY_BACKOFF_MS", "250")
	t.Setenv("RESY_RPS", "0.5")
	t.Setenv("PUBLIC_RPM", "0")
	t.Setenv("ADMIN_BURST", "44")
	t.Setenv("DISCORD_WEBHOOK_URL", " https://discord.test/hook ")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173")

	cfg := FromEnv()

	if cfg.Addr != ":9090" || cfg.LogDir != "./_testlogs" || cfg.LogLevel != "debug" {
		t.Fatalf("addr/logdir wrong: %+v", cfg)
	}
	if len(cfg.PublicAPIKeys) != 2 || cfg.PublicAPIKeys[1] != "pub_b" {
		t.Fatalf("public keys wrong: %q", cfg.PublicAPIKeys)
	}
	if len(cfg.AdminAPIKeys) != 1 || cfg.AdminAPIKeys[0] != "adm_x" {
		t.Fatalf("admin keys wrong: %q", cfg.AdminAPIKeys)
	}
	if cfg.PollInterval != 30*time.Second || cfg.PollTick != 250*time.Millisecond || cfg.CheckTimeout != 10*time.Second {
		t.Fatalf("engine timings wrong: %+v", cfg)
	}
	if cfg.MaxConcurrent != 7 || cfg.MaxRetries != 5 || cfg.RetryBackoff != 250*time.Millisecond || cfg.ResyRPS != 0.5 {
		t.Fatalf("tuning wrong: %+v", cfg)
	}
	if cfg.PublicRPM != 0 || cfg.AdminBurst != 44 {
		t.Fatalf("rate limits wrong: %+v", cfg)
	}
	if cfg.ResyAPIKey != "k123" || cfg.DiscordWebhookURL != "https://discord.test/hook" {
		t.Fatalf("secrets wrong: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("origins wrong: %q", cfg.AllowedOrigins)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"API_ADDR", "LOG_DIR", "POLL_INTERVAL_SEC", "POLL_TICK_MS", "SHUTDOWN_TIMEOUT_MS",
		"CHECK_TIMEOUT_SEC", "MAX_CONCURRENT_CHECKS", "REQUEST_TIMEOUT_MS", "RESY_MAX_RETRIES", "PUBLIC_API_KEYS"} {
		t.Setenv(k, "")
	}
	t.Setenv("MAX_CONCURRENT_CHECKS", "-2")

	cfg := FromEnv()
	if cfg.Addr != "127.0.0.1:8080" || cfg.LogDir != "logs" {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	if cfg.PollInterval != 120*time.Second || cfg.PollTick != time.Second || cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("engine defaults wrong: %+v", cfg)
	}
	if cfg.CheckTimeout != 90*time.Second || cfg.MaxConcurrent != 4 {
		t.Fatalf("check defaults wrong: %+v", cfg)
	}
	if cfg.RequestTimeout != 12*time.Second || cfg.MaxRetries != 3 {
		t.Fatalf("resy defaults wrong: %+v", cfg)
	}
	if cfg.PublicAPIKeys != nil {
		t.Fatalf("want no keys, got %q", cfg.PublicAPIKeys)
	}
}
