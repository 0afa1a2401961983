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

	"clinicq/internal/api"
	"clinicq/internal/config"
	"clinicq/internal/database"
	"clinicq/internal/events"
	"clinicq/internal/google"
	"clinicq/internal/metrics"
	"clinicq/internal/notify"
	"clinicq/internal/report"
	"clinicq/internal/scheduler"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			logger.Fatal().Err(err).Msg("failed to load .env")
		}
	}

	cfg, err := config.Load(os.Getenv("CLINICQ_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var sinks []notify.Sink
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.AssistChatID)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram sink error")
		}
		sinks = append(sinks, tg)
	}
	if rdb != nil {
		sinks = append(sinks, notify.NewRedisSink(rdb, cfg.Redis.Channel))
	}

	var notifier scheduler.Notifier
	if len(sinks) > 0 {
		notifier = notify.NewHub(&logger, sinks...)
	}

	bus := events.NewBus()
	bus.Subscribe(events.TypeQueueClosed, func(e events.Event) error {
		logger.Warn().Str("queue_id", e.QueueID).Msg("queue closed at shift capacity")
		return nil
	})

	sched := scheduler.New(db, notifier, bus, scheduler.Config{
		ShiftStart:            cfg.Queue.ShiftStart,
		ShiftEnd:              cfg.Queue.ShiftEnd,
		AvgConsultTimeMinutes: cfg.Queue.AvgConsultTimeMinutes,
		MaxQueueSize:          cfg.Queue.MaxQueueSize,
	}, &logger)

	exporter := report.NewExporter(db, &logger)
	server := api.NewHTTPServer(sched, exporter, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sheets.Enabled {
		sheetsSvc, err := google.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create sheets service error")
		}
		go sheetsSvc.RunDailySync(ctx, db, exporter, 5*time.Minute)
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(
			cfg.Database.Path,
			cfg.Backup.StoragePath,
			cfg.Backup.RetentionDays,
			time.Duration(cfg.Backup.IntervalHours)*time.Hour,
			&logger,
		)
		go backup.Start(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("clinicq started")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
