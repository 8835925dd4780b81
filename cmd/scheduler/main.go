package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"salescrm_backend/internal/email"
	"salescrm_backend/internal/events"
	leadrepo "salescrm_backend/internal/leads/repository"
	"salescrm_backend/internal/matching"
	"salescrm_backend/internal/notification"
	"salescrm_backend/internal/notification/inapp"
	"salescrm_backend/internal/notification/outbox"
	"salescrm_backend/internal/scheduler"
	userrepo "salescrm_backend/internal/users/repository"
	"salescrm_backend/platform/config"
	"salescrm_backend/platform/db"
	"salescrm_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	outboxRepo := outbox.New(pool)
	notificationModule := notification.New(inapp.NewRepository(pool), userrepo.New(pool), sender, cfg.GetAuditLocation(), cfg.GetAppBaseURL(), log)
	notificationModule.SetOutbox(outboxRepo)
	notificationModule.RegisterHandlers(eventBus)

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, outboxRepo, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()

	housekeeping, err := scheduler.NewHousekeeping(matching.NewLogRepository(pool), cfg.GetMatchLogRetention(), cfg.GetMatchLogCleanupSpec(), log)
	if err != nil {
		log.Error("failed to initialize housekeeping", "error", err)
		panic("failed to initialize housekeeping: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, leadrepo.New(pool), eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	var wg sync.WaitGroup
	wg.Go(func() { dispatcher.Run(ctx) })
	wg.Go(func() { housekeeping.Run(ctx) })

	worker.Run(ctx)
	stop()
	wg.Wait()
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
