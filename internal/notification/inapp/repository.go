// Package inapp stores in-app notifications and pushes them to online users.
package inapp

import (
	"context"
	"fmt"
	"time"

	"salescrm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opList        = "notification.inapp.repository.list"
	opCountUnread = "notification.inapp.repository.count_unread"
	opMarkRead    = "notification.inapp.repository.mark_read"
	opMarkAllRead = "notification.inapp.repository.mark_all_read"
	opDelete      = "notification.inapp.repository.delete"

	msgNotificationNotFound = "notification not found"
)

// Notification types attached to hot lead notifications.
const (
	TypeHotLeadCreated      = "hot_lead_created"
	TypeHotLeadStatus       = "hot_lead_status"
	TypeHotLeadReleased     = "hot_lead_released"
	TypeHotLeadsReleased    = "hot_leads_released"
	TypeAppointmentReminder = "appointment_reminder"

	ResourceHotLead = "hot_lead"
)

type Notification struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"userId"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	ResourceID   *uuid.UUID `json:"resourceId,omitempty"`
	ResourceType *string    `json:"resourceType,omitempty"`
	Category     string     `json:"category"`
	IsRead       bool       `json:"isRead"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type CreateParams struct {
	UserID       uuid.UUID
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType *string
	Category     string
}

// Store is the persistence behind the in-app service.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if p.UserID == uuid.Nil {
		return Notification{}, apperr.Validation("userId is required").WithOp(opCreate)
	}
	if p.Title == "" || p.Content == "" {
		return Notification{}, apperr.Validation("title and content are required").WithOp(opCreate)
	}

	category := p.Category
	if category == "" {
		category = "info"
	}

	var n Notification
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, title, content, resource_id, resource_type, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, title, content, resource_id, resource_type, category, is_read, created_at
	`, p.UserID, p.Title, p.Content, p.ResourceID, p.ResourceType, category).Scan(
		&n.ID, &n.UserID, &n.Title, &n.Content, &n.ResourceID, &n.ResourceType, &n.Category, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		return Notification{}, apperr.Internal(fmt.Sprintf("create notification failed: %v", err)).WithOp(opCreate)
	}
	return n, nil
}

// List returns one page of the user's notifications, newest first, and the total count.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count notifications failed: %v", err)).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, content, resource_id, resource_type, category, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list notifications failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.ResourceID, &n.ResourceType, &n.Category, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan notification failed: %v", err)).WithOp(opList)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("iterate notifications failed: %v", err)).WithOp(opList)
	}
	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("count unread failed: %v", err)).WithOp(opCountUnread)
	}
	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark read failed: %v", err)).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgNotificationNotFound).WithOp(opMarkRead)
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = now()
		WHERE user_id = $1 AND NOT is_read
	`, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark all read failed: %v", err)).WithOp(opMarkAllRead)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("delete notification failed: %v", err)).WithOp(opDelete)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgNotificationNotFound).WithOp(opDelete)
	}
	return nil
}
