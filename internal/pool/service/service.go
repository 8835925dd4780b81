// Package service manages the shared pool of unassigned hot leads.
package service

import (
	"context"
	"log/slog"

	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/leads/repository"
	"salescrm_backend/platform/apperr"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/metrics"

	"github.com/google/uuid"
)

const msgNotYourHotLead = "only the assigned closer or an admin can release this hot lead"

// Store is the subset of the lead store the pool needs.
type Store interface {
	GetHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error)
	ListPool(ctx context.Context) ([]domain.HotLead, error)
	ClaimHotLead(ctx context.Context, id, closerID uuid.UUID) (domain.HotLead, error)
	ReleaseHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error)
	ReleaseHotLeadsForCloser(ctx context.Context, closerID uuid.UUID) ([]domain.HotLead, error)
}

// Actor is the user asking for a pool change.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

type Service struct {
	store   Store
	bus     events.Bus
	metrics *metrics.Metrics
	log     *logger.Logger
}

func New(store Store, bus events.Bus, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: store, bus: bus, metrics: m, log: log}
}

func (s *Service) ListPool(ctx context.Context) ([]domain.HotLead, error) {
	return s.store.ListPool(ctx)
}

// Release puts the hot lead back into the pool. Only the closer field
// changes. Releasing a hot lead that already sits in the pool is a no-op.
func (s *Service) Release(ctx context.Context, hotLeadID uuid.UUID, actor Actor) (domain.HotLead, error) {
	hot, err := s.store.GetHotLead(ctx, hotLeadID)
	if err != nil {
		return domain.HotLead{}, err
	}
	if hot.InPool() {
		return hot, nil
	}
	if !actor.IsAdmin && *hot.CloserID != actor.UserID {
		return domain.HotLead{}, apperr.Forbidden(msgNotYourHotLead)
	}

	released, err := s.store.ReleaseHotLead(ctx, hotLeadID)
	if err != nil {
		return domain.HotLead{}, err
	}
	s.metrics.RecordRelease(1)

	s.bus.Publish(ctx, events.HotLeadReleased{
		BaseEvent:        events.NewBaseEvent(),
		HotLeadID:        released.ID,
		CompanyName:      released.CompanyName,
		ReleasedByUserID: actor.UserID,
	})
	return released, nil
}

// BulkRelease returns every open hot lead of closerID to the pool and
// publishes a single event for the whole batch.
func (s *Service) BulkRelease(ctx context.Context, closerID uuid.UUID) ([]uuid.UUID, error) {
	released, err := s.store.ReleaseHotLeadsForCloser(ctx, closerID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(released))
	for _, hot := range released {
		ids = append(ids, hot.ID)
	}
	if len(ids) == 0 {
		return ids, nil
	}
	s.metrics.RecordRelease(len(ids))

	s.log.WithContext(ctx).Info("hot leads returned to pool",
		slog.String("closer_id", closerID.String()),
		slog.Int("count", len(ids)),
	)
	s.bus.Publish(ctx, events.HotLeadsBulkReleased{
		BaseEvent:  events.NewBaseEvent(),
		CloserID:   closerID,
		HotLeadIDs: ids,
	})
	return ids, nil
}

// Claim assigns a pooled hot lead to closerID. Of two concurrent claims
// exactly one wins, the other gets a conflict.
func (s *Service) Claim(ctx context.Context, hotLeadID, closerID uuid.UUID) (domain.HotLead, error) {
	hot, err := s.store.ClaimHotLead(ctx, hotLeadID, closerID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.metrics.RecordClaimConflict()
			return domain.HotLead{}, apperr.Conflict(repository.MsgAlreadyClaimed)
		}
		return domain.HotLead{}, err
	}

	s.bus.Publish(ctx, events.HotLeadClaimed{
		BaseEvent:   events.NewBaseEvent(),
		HotLeadID:   hot.ID,
		CompanyName: hot.CompanyName,
		CloserID:    closerID,
	})
	return hot, nil
}
