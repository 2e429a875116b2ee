package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Foundryproject/Donna/internal/auth"
	"github.com/Foundryproject/Donna/internal/bot"
	"github.com/Foundryproject/Donna/internal/config"
	"github.com/Foundryproject/Donna/internal/db"
	"github.com/Foundryproject/Donna/internal/google"
	"github.com/Foundryproject/Donna/internal/metrics"
	"github.com/Foundryproject/Donna/internal/reminder"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Local development convenience; config values can reference env vars.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("DONNA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}
	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		logger.Fatal().Msg("set google.client_id and google.client_secret in config")
	}
	if cfg.Google.BaseURL == "" {
		logger.Fatal().Msg("set google.base_url in config")
	}

	database, err := db.NewDB(cfg.Database.Path, cfg.Defaults.Timezone, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	gcal := google.NewClient(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.BaseURL, &logger)
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		gcal.UseRedisCache(rdb, 45*time.Minute)
	}

	metrics.Register()
	reminderMetrics := reminder.NewMetrics("donna")

	materializer := reminder.NewMaterializer(database, database, gcal, cfg.ReminderLead(), reminderMetrics, &logger)
	b, err := bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, database, gcal, materializer, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	dispatcher := reminder.NewDispatcher(
		&reminder.DispatcherConfig{PollInterval: cfg.PollInterval()},
		database, database, b.Sender(), reminderMetrics, &logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher.Start()
	defer dispatcher.Stop()

	backup := db.NewBackupService(cfg.Database.Path, db.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		IntervalHours: cfg.Backup.IntervalHours,
		Path:          cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backup.Start(ctx)

	if cfg.Monitoring.AuthCallbackPort == 0 {
		cfg.Monitoring.AuthCallbackPort = 8080
	}
	callback := auth.NewHandler(gcal, database, b.Sender(), &logger)
	go startAuthServer(ctx, cfg.Monitoring.AuthCallbackPort, callback, &logger)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("Donna started")
	b.Start(ctx)
}

func startAuthServer(ctx context.Context, port int, callback *auth.Handler, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/auth/callback", callback)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("auth server error")
	}
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
