package scheduler

import (
	"context"
	"fmt"
	"time"

	"salescrm_backend/platform/logger"

	"github.com/robfig/cron/v3"
)

const (
	defaultMatchLogRetention   = 90 * 24 * time.Hour
	defaultMatchLogCleanupSpec = "30 3 * * *"
	housekeepingTimeout        = 5 * time.Minute
)

// MatchLogPruner deletes match decisions older than a cutoff.
type MatchLogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Housekeeping runs periodic cleanup jobs on a cron schedule.
type Housekeeping struct {
	cron      *cron.Cron
	matchLog  MatchLogPruner
	retention time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewHousekeeping registers the match log cleanup under spec (standard
// five-field cron syntax) and returns the stopped scheduler.
func NewHousekeeping(matchLog MatchLogPruner, retention time.Duration, spec string, log *logger.Logger) (*Housekeeping, error) {
	if retention <= 0 {
		retention = defaultMatchLogRetention
	}
	if spec == "" {
		spec = defaultMatchLogCleanupSpec
	}
	h := &Housekeeping{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		matchLog:  matchLog,
		retention: retention,
		log:       log,
		now:       time.Now,
	}
	if _, err := h.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), housekeepingTimeout)
		defer cancel()
		h.cleanupMatchLog(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid match log cleanup schedule %q: %w", spec, err)
	}
	return h, nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job to finish.
func (h *Housekeeping) Run(ctx context.Context) {
	if h == nil {
		return
	}
	h.cron.Start()
	<-ctx.Done()
	<-h.cron.Stop().Done()
}

func (h *Housekeeping) cleanupMatchLog(ctx context.Context) int64 {
	cutoff := h.now().Add(-h.retention)
	deleted, err := h.matchLog.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		h.log.Warn("match log cleanup failed", "error", err)
		return 0
	}
	if deleted > 0 {
		h.log.Info("match log cleanup deleted old decisions", "deleted", deleted, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return deleted
}
