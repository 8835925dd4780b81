package inapp

import (
	"context"

	"salescrm_backend/internal/notification/sse"
	"salescrm_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	repo Store
	sse  *sse.Service
	log  *logger.Logger
}

func NewService(repo Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		repo: repo,
		log:  log,
	}
}

// SetSSE injects the SSE service. The API process sets it, the scheduler does not.
func (s *Service) SetSSE(sseSvc *sse.Service) {
	s.sse = sseSvc
}

type SendParams struct {
	UserID       uuid.UUID
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType string
	Category     string // "info", "success", "warning", "error"
	Type         string
}

// Send persists the notification and pushes it via SSE if the user is online.
func (s *Service) Send(ctx context.Context, p SendParams) (Notification, error) {
	var resourceType *string
	if p.ResourceType != "" {
		resourceType = &p.ResourceType
	}

	notif, err := s.repo.Create(ctx, CreateParams{
		UserID:       p.UserID,
		Title:        p.Title,
		Content:      p.Content,
		ResourceID:   p.ResourceID,
		ResourceType: resourceType,
		Category:     p.Category,
	})
	if err != nil {
		s.log.Error("failed to persist in-app notification", "error", err, "userId", p.UserID)
		return Notification{}, err
	}

	if s.sse != nil {
		eventType := p.Type
		if eventType == "" {
			eventType = "in_app_notification"
		}
		s.sse.Publish(p.UserID, sse.Event{
			Type:    sse.EventType(eventType),
			Message: notif.Title,
			Data:    notif,
		})
	}

	return notif, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, userID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}
