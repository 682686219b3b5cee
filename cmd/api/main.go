package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hamed0406/resymon/internal/config"
	"github.com/hamed0406/resymon/internal/httpapi"
	apimw "github.com/hamed0406/resymon/internal/httpapi/middleware"
	"github.com/hamed0406/resymon/internal/logging"
	"github.com/hamed0406/resymon/internal/metrics"
	"github.com/hamed0406/resymon/internal/notify"
	"github.com/hamed0406/resymon/internal/probe"
	"github.com/hamed0406/resymon/internal/resy"
	"github.com/hamed0406/resymon/internal/scheduler"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.ResyAPIKey == "" {
		logger.Warn("resy_api_key_missing")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(promReg)

	client := resy.New(resy.Options{
		APIKey:      cfg.ResyAPIKey,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.RequestTimeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.RetryBackoff,
		RPS:         cfg.ResyRPS,
		Burst:       cfg.ResyBurst,
	}, logger)

	checker := probe.NewAvailability(logger, client, notifiers(cfg, logger), rec)

	engine := scheduler.New(logger, checker, rec, scheduler.Options{
		Interval:        cfg.PollInterval,
		Tick:            cfg.PollTick,
		ShutdownTimeout: cfg.ShutdownTimeout,
		CheckTimeout:    cfg.CheckTimeout,
		Concurrency:     cfg.MaxConcurrent,
	})

	api := httpapi.NewServer(logger, engine, client, checker, promReg)
	api.CheckTimeout = cfg.CheckTimeout
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	if !keys.Enabled() {
		logger.Warn("api_keys_missing", zap.String("hint", "set PUBLIC_API_KEYS and ADMIN_API_KEYS"))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown", zap.Error(err))
	}
	engine.Stop()
	logger.Info("api_stopped")
}

// notifiers returns the configured webhook targets, or nil when none are set.
func notifiers(cfg config.Config, logger *zap.Logger) notify.Notifier {
	var m notify.Multi
	if d := notify.NewDiscord(cfg.DiscordWebhookURL); d != nil {
		m = append(m, d)
	}
	if s := notify.NewSlack(cfg.SlackWebhookURL); s != nil {
		m = append(m, s)
	}
	if len(m) == 0 {
		logger.Warn("notifications_disabled", zap.String("hint", "set DISCORD_WEBHOOK_URL or SLACK_WEBHOOK_URL"))
		return nil
	}
	return m
}
