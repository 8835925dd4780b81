package scheduler

import (
	"context"
	"fmt"

	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/platform/apperr"
	"salescrm_backend/platform/config"
	"salescrm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// HotLeadReader loads the hot lead a reminder belongs to.
type HotLeadReader interface {
	GetHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	store  HotLeadReader
	bus    events.Bus
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, store HotLeadReader, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		store:  store,
		bus:    bus,
		log:    log,
	}

	w.mux.HandleFunc(TaskAppointmentReminder, w.handleAppointmentReminder)
	w.mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w, nil
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	})
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleAppointmentReminder publishes AppointmentReminderDue when the hot lead
// still has the appointment the reminder was scheduled for and a closer to
// remind. Anything else is a stale reminder and is dropped.
func (w *Worker) handleAppointmentReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAppointmentReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	hotLeadID, err := uuid.Parse(payload.HotLeadID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	hot, err := w.store.GetHotLead(ctx, hotLeadID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !reminderStillDue(hot, payload) {
		w.log.Debug("stale appointment reminder dropped", "hotLeadId", payload.HotLeadID)
		return nil
	}

	if w.bus == nil {
		return nil
	}

	w.bus.Publish(ctx, events.AppointmentReminderDue{
		BaseEvent:     events.NewBaseEvent(),
		HotLeadID:     hot.ID,
		CloserID:      *hot.CloserID,
		CompanyName:   hot.CompanyName,
		AppointmentAt: *hot.AppointmentAt,
	})

	return nil
}

func reminderStillDue(hot domain.HotLead, payload AppointmentReminderPayload) bool {
	if hot.AppointmentAt == nil || hot.CloserID == nil {
		return false
	}
	if hot.Status.IsTerminal() || hot.Status.IsCancelled() {
		return false
	}
	return hot.AppointmentAt.Equal(payload.AppointmentAt)
}
