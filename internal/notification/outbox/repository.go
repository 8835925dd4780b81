// Package outbox persists notification deliveries that run outside the
// request, such as email copies of in-app notifications.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salescrm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Kinds and templates understood by the notification module.
const (
	KindEmail         = "email"
	TemplateEmailSend = "email_send"
	defaultClaimLimit = 50
	opInsert          = "notification.outbox.insert"
	opGetByID         = "notification.outbox.get_by_id"
	opClaimPending    = "notification.outbox.claim_pending"
	opUpdateStatus    = "notification.outbox.update_status"
	msgOutboxNotFound = "outbox record not found"
)

type Record struct {
	ID       uuid.UUID
	Kind     string
	Template string
	Payload  json.RawMessage
	RunAt    time.Time
	Status   Status
	Attempts int
}

type InsertParams struct {
	Kind     string
	Template string
	Payload  any
	RunAt    time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if p.Kind == "" || p.Template == "" {
		return uuid.Nil, apperr.Validation("kind and template are required").WithOp(opInsert)
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, apperr.Internal(fmt.Sprintf("marshal outbox payload: %v", err)).WithOp(opInsert)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `
		INSERT INTO notification_outbox (kind, template, payload, run_at, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id
	`, p.Kind, p.Template, payloadBytes, p.RunAt).Scan(&id)
	if err != nil {
		return uuid.Nil, apperr.Internal(fmt.Sprintf("insert outbox record failed: %v", err)).WithOp(opInsert)
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, template, payload, run_at, status, attempts
		FROM notification_outbox
		WHERE id = $1
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound(msgOutboxNotFound).WithOp(opGetByID)
	}
	if err != nil {
		return Record{}, apperr.Internal(fmt.Sprintf("get outbox record failed: %v", err)).WithOp(opGetByID)
	}
	return rec, nil
}

// ClaimPending moves up to limit due records to enqueued and returns them.
// Concurrent dispatchers skip rows another transaction already locked.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 {
		limit = defaultClaimLimit
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("begin claim failed: %v", err)).WithOp(opClaimPending)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		WITH cte AS (
			SELECT id
			FROM notification_outbox
			WHERE status = 'pending' AND run_at <= now()
			ORDER BY run_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_outbox o
		SET status = 'enqueued', updated_at = now()
		FROM cte
		WHERE o.id = cte.id
		RETURNING o.id, o.kind, o.template, o.payload, o.run_at, o.status, o.attempts
	`, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("claim outbox records failed: %v", err)).WithOp(opClaimPending)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan outbox record failed: %v", err)).WithOp(opClaimPending)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate outbox records failed: %v", err)).WithOp(opClaimPending)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("commit claim failed: %v", err)).WithOp(opClaimPending)
	}
	return results, nil
}

func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.exec(ctx, `
		UPDATE notification_outbox
		SET status = 'pending', last_error = $2, updated_at = now()
		WHERE id = $1
	`, id, lastError)
}

func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `
		UPDATE notification_outbox
		SET status = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id = $1
	`, id)
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `
		UPDATE notification_outbox
		SET status = 'succeeded', last_error = NULL, updated_at = now()
		WHERE id = $1
	`, id)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.exec(ctx, `
		UPDATE notification_outbox
		SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1
	`, id, lastError)
}

// ScheduleRetry returns the record to pending with a later run_at.
func (r *Repository) ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return r.exec(ctx, `
		UPDATE notification_outbox
		SET status = 'pending', run_at = $2, last_error = $3, updated_at = now()
		WHERE id = $1
	`, id, runAt, lastError)
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return apperr.Internal(fmt.Sprintf("update outbox record failed: %v", err)).WithOp(opUpdateStatus)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var status string
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Template, &rec.Payload, &rec.RunAt, &status, &rec.Attempts); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}
