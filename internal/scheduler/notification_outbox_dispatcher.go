package scheduler

import (
	"context"
	"fmt"
	"time"

	"salescrm_backend/internal/notification/outbox"
	"salescrm_backend/platform/config"
	"salescrm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	outboxPollInterval = 2 * time.Second
	outboxClaimBatch   = 50
)

// OutboxClaimer hands out due outbox records and takes back the ones that
// could not be enqueued.
type OutboxClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

type NotificationOutboxDispatcher struct {
	client   taskEnqueuer
	queue    string
	repo     OutboxClaimer
	log      *logger.Logger
	interval time.Duration
}

func NewNotificationOutboxDispatcher(cfg config.SchedulerConfig, repo OutboxClaimer, log *logger.Logger) (*NotificationOutboxDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &NotificationOutboxDispatcher{
		client:   asynq.NewClient(opt),
		queue:    queueName(cfg),
		repo:     repo,
		log:      log,
		interval: outboxPollInterval,
	}, nil
}

func (d *NotificationOutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.dispatchOnce(ctx)
	}
}

// dispatchOnce claims one batch and enqueues a task per record. Records that
// fail to enqueue go back to pending. Returns the number enqueued.
func (d *NotificationOutboxDispatcher) dispatchOnce(ctx context.Context) int {
	records, err := d.repo.ClaimPending(ctx, outboxClaimBatch)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
			OutboxID: rec.ID.String(),
		})
		if err == nil {
			_, err = d.client.EnqueueContext(ctx, task, asynq.ProcessAt(rec.RunAt), asynq.Queue(d.queue))
		}
		if err != nil {
			msg := err.Error()
			if markErr := d.repo.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.Warn("outbox record could not be reset", "outboxId", rec.ID.String(), "error", markErr)
			}
			continue
		}
		enqueued++
	}
	return enqueued
}
