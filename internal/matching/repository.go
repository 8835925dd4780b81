package matching

import (
	"context"
	"fmt"
	"time"

	"salescrm_backend/platform/apperr"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opRecordDecision = "matching.repository.record"
	opDeleteOlder    = "matching.repository.delete_older_than"
)

// LogRepository stores match decisions in calendar_match_log.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository creates a match log repository.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

var _ DecisionRecorder = (*LogRepository)(nil)

func (r *LogRepository) Record(ctx context.Context, d Decision) error {
	var referenceTime *time.Time
	if !d.ReferenceTime.IsZero() {
		ref := d.ReferenceTime
		referenceTime = &ref
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_match_log (event_type, strategy, company_answer, reference_time, hot_lead_id, archive_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, string(d.EventKind), d.Strategy, d.CompanyAnswer, referenceTime, d.HotLeadID, d.ArchiveKey)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("record match decision failed: %v", err)).WithOp(opRecordDecision)
	}
	return nil
}

// DeleteOlderThan removes decisions created before cutoff and returns how
// many rows were removed.
func (r *LogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM calendar_match_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("delete match log failed: %v", err)).WithOp(opDeleteOlder)
	}
	return tag.RowsAffected(), nil
}
