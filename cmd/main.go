package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bizdesk/internal/bootstrap"
	"bizdesk/internal/config"
	cronpkg "bizdesk/internal/cron"
	"bizdesk/internal/lock"
	"bizdesk/internal/notify"
	"bizdesk/internal/recurring"
	"bizdesk/internal/repository"
	"bizdesk/internal/router"
)

func main() {
	// --- Logger ---
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Claim lock (Redis with in-memory fallback) ---
	locker, lockErr := lock.New(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB)
	if lockErr != nil {
		logger.Warn("Redis unavailable for claim locks, using in-memory fallback", zap.Error(lockErr))
	}

	// --- Recurring engine ---
	schedules := repository.NewScheduleRepository(db)
	jobs := repository.NewJobRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	outbox := repository.NewCronJobRepository(db)

	engine := recurring.NewEngine(schedules, jobs, invoices, outbox, logger)
	claims := recurring.NewCoordinator(schedules, locker, cfg.Recurring.ClaimTTL, logger)
	svc := recurring.NewService(schedules, engine, claims, recurring.Options{
		ClaimWait:    cfg.Recurring.ClaimWait,
		ExecTimeout:  cfg.Recurring.ExecTimeout,
		ResumePolicy: cfg.Recurring.ResumePolicy,
		Location:     cfg.Recurring.Location(),
	}, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, router.Deps{
		Schedules:    svc,
		Jobs:         jobs,
		Invoices:     invoices,
		Logger:       logger,
		APIKey:       cfg.API.Key,
		HashFilePath: cfg.API.HashFile,
	})

	// --- Cron Scheduler ---
	hook := notify.New(cfg.Notify.WebhookURL, cfg.Notify.Token, cfg.Notify.Timeout)
	if cfg.Notify.WebhookURL == "" {
		logger.Info("NOTIFY_WEBHOOK_URL not set, job-created events are dropped")
	}
	scheduler := cronpkg.New(cfg, svc, outbox, hook, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting bizdesk server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron; running sweeps finish their executions
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg)
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}
	logger.Info("Schema migration completed", zap.String("driver", dbCfg.Driver))
	return nil
}
