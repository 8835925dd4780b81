package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salescrm_backend/internal/adapters/storage"
	"salescrm_backend/internal/booking"
	bookingservice "salescrm_backend/internal/booking/service"
	"salescrm_backend/internal/calendar"
	"salescrm_backend/internal/calendly"
	"salescrm_backend/internal/email"
	"salescrm_backend/internal/events"
	apphttp "salescrm_backend/internal/http"
	"salescrm_backend/internal/http/router"
	"salescrm_backend/internal/leads"
	"salescrm_backend/internal/matching"
	"salescrm_backend/internal/notification"
	"salescrm_backend/internal/notification/inapp"
	"salescrm_backend/internal/notification/outbox"
	"salescrm_backend/internal/notification/sse"
	"salescrm_backend/internal/pool"
	"salescrm_backend/internal/scheduler"
	"salescrm_backend/internal/transitions"
	transitionservice "salescrm_backend/internal/transitions/service"
	"salescrm_backend/internal/users"
	userrepo "salescrm_backend/internal/users/repository"
	"salescrm_backend/migrations"
	"salescrm_backend/platform/config"
	"salescrm_backend/platform/db"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/metrics"
	"salescrm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg, migrations.FS)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	var dbPool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		dbPool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer dbPool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	appMetrics := metrics.New(prometheus.DefaultRegisterer)
	val := validator.New()
	loc := cfg.GetAuditLocation()

	reminderScheduler, closeScheduler := initReminderScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule := leads.NewModule(dbPool)
	userStore := userrepo.New(dbPool)

	matcher := matching.NewMatcher(leadsModule.Store, log,
		matching.WithRecorder(matching.NewLogRepository(dbPool)),
		matching.WithMetrics(appMetrics),
	)

	transitionsModule := transitions.NewModule(leadsModule.Store, eventBus, loc, val, log,
		transitionservice.WithMetrics(appMetrics),
	)
	poolModule := pool.NewModule(leadsModule.Store, eventBus, appMetrics, log)
	usersModule := users.NewModule(userStore, poolModule.Service, log)

	// Notification module subscribes to domain events and serves the inbox
	notificationModule := notification.New(inapp.NewRepository(dbPool), userStore, sender, loc, cfg.GetAppBaseURL(), log)
	notificationModule.SetSSE(sse.New(log))
	notificationModule.SetOutbox(outbox.New(dbPool))
	notificationModule.RegisterHandlers(eventBus)

	calendlyModule, closeCalendly := initCalendlyModule(ctx, cfg, matcher, transitionsModule.Service, loc, log)
	if closeCalendly != nil {
		defer closeCalendly()
	}

	bookingModule := initBookingModule(cfg, leadsModule, userStore, eventBus, val, appMetrics, reminderScheduler, loc, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(dbPool),
		EventBus: eventBus,
		Metrics:  appMetrics,
		Modules: []apphttp.Module{
			leadsModule,
			bookingModule,
			transitionsModule,
			poolModule,
			usersModule,
			calendlyModule,
			notificationModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initReminderScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.ReminderScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; appointment reminders disabled")
		return nil, nil
	}

	reminderClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		return nil, nil
	}

	return reminderClient, func() {
		_ = reminderClient.Close()
	}
}

// initCalendlyModule wires the webhook endpoint. Invitee lookups, delivery
// dedupe and payload archiving are each optional.
func initCalendlyModule(ctx context.Context, cfg *config.Config, matcher *matching.Matcher, transitioner calendly.Transitioner, loc *time.Location, log *logger.Logger) (*calendly.Module, func()) {
	var opts []calendly.HandlerOption
	var closers []func()

	if key := cfg.GetCalendlySigningKey(); key != "" {
		opts = append(opts, calendly.WithSigningKey(key))
	} else {
		log.Warn("CALENDLY_WEBHOOK_SIGNING_KEY not configured; webhook signatures are not verified")
	}

	if cfg.GetRedisURL() != "" {
		rdb, err := calendly.NewRedisClient(cfg.GetRedisURL())
		if err != nil {
			log.Error("failed to initialize webhook dedupe", "error", err)
		} else {
			opts = append(opts, calendly.WithDeduper(calendly.NewRedisDeduper(rdb, cfg.GetWebhookDedupeTTL())))
			closers = append(closers, func() { _ = rdb.Close() })
		}
	}

	if cfg.IsMinIOEnabled() {
		archive, err := storage.NewWebhookArchive(cfg)
		if err == nil {
			err = withRetry(ctx, log, "ensure webhook archive bucket", 5, 2*time.Second, func() error {
				return archive.EnsureBucketExists(ctx)
			})
		}
		if err != nil {
			log.Error("webhook archive disabled", "error", err, "bucket", cfg.GetMinioBucketWebhookArchive())
		} else {
			opts = append(opts, calendly.WithArchiver(archive))
			log.Info("webhook archive initialized", "bucket", cfg.GetMinioBucketWebhookArchive())
		}
	}

	var resolver calendly.InviteeResolver
	client, err := calendly.NewClient(cfg, log)
	switch {
	case err != nil:
		log.Error("calendly client disabled", "error", err)
	case client != nil:
		resolver = client
	}

	module := calendly.NewModule(matcher, transitioner, resolver, loc, log, opts...)
	return module, func() {
		for _, c := range closers {
			c()
		}
	}
}

func initBookingModule(cfg *config.Config, leadsModule *leads.Module, directory bookingservice.Directory, bus events.Bus, val *validator.Validator, m *metrics.Metrics, reminders scheduler.ReminderScheduler, loc *time.Location, log *logger.Logger) *booking.Module {
	opts := []bookingservice.Option{
		bookingservice.WithMetrics(m),
		bookingservice.WithSlotDuration(cfg.GetSlotDuration()),
		bookingservice.WithTimeouts(cfg.GetPrimaryCalendarTimeout(), cfg.GetCalendlyTimeout()),
	}
	if reminders != nil {
		opts = append(opts, bookingservice.WithReminders(reminders, cfg.GetReminderLeadTime()))
	}

	client, err := calendly.NewClient(cfg, log)
	switch {
	case err != nil:
		log.Error("secondary calendar mirroring disabled", "error", err)
	case client == nil:
		log.Warn("CALENDLY_TOKEN not configured; bookings are not mirrored")
	case cfg.GetCalendlyEventTypeURI() == "":
		log.Warn("CALENDLY_EVENT_TYPE_URI not configured; bookings are not mirrored")
	default:
		opts = append(opts, bookingservice.WithSecondary(client, cfg.GetCalendlyEventTypeURI()))
	}

	primary := calendar.NewClient(cfg, log)
	return booking.NewModule(leadsModule.Store, directory, primary, bus, val, loc, log, opts...)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
