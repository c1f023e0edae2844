package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"channelmirror/internal/config"
	"channelmirror/internal/httpapi"
	"channelmirror/internal/publisher"
	"channelmirror/internal/scheduler"
	"channelmirror/internal/service"
	"channelmirror/internal/source/telegram"
	"channelmirror/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		})
		if err != nil {
			logger.Error("failed to init sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	channelStore := postgres.NewChannelStore(db)
	messageStore := postgres.NewMessageStore(db)
	snapshotStore := postgres.NewSnapshotStore(db)
	txManager := postgres.NewTransactionManager(db)

	gateway := telegram.New(telegram.Config{
		BaseURL:           cfg.Source.BaseURL,
		Token:             cfg.Source.Token,
		Timeout:           cfg.Source.Timeout,
		MinRequestDelay:   cfg.Source.MinRequestDelay,
		MaxRequestDelay:   cfg.Source.MaxRequestDelay,
		FloodWaitMargin:   cfg.Source.FloodWaitMargin,
		RequestsPerMinute: cfg.Source.RequestsPerMinute,
	}, logger)

	tracker := service.NewTracker()
	pipeline := service.NewPipeline(messageStore, txManager, rabbitMQ, logger)
	watermarks := service.NewWatermarkTracker(messageStore)
	mirror := service.NewMirror(gateway, channelStore, pipeline, watermarks, tracker, logger, cfg.Sync)
	snapshotter := service.NewSnapshotter(gateway, channelStore, messageStore, snapshotStore, logger)
	growth := service.NewGrowth(channelStore, snapshotStore, cfg.Sync.GrowthSnapshots)

	sched := scheduler.NewScheduler(mirror, snapshotter, cfg.Sync.Interval, cfg.Sync.SnapshotHour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	api := httpapi.NewServer(mirror, growth, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting channel mirror",
		"interval", cfg.Sync.Interval,
		"max_messages", cfg.Sync.MaxMessagesPerSync,
		"snapshot_hour", cfg.Sync.SnapshotHour,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
