package service

import (
	"context"
	"log/slog"

	"salescrm_backend/internal/users/repository"
	"salescrm_backend/platform/httpkit"
	"salescrm_backend/platform/logger"

	"github.com/google/uuid"
)

// PoolReleaser returns a closer's open hot leads to the pool.
type PoolReleaser interface {
	BulkRelease(ctx context.Context, closerID uuid.UUID) ([]uuid.UUID, error)
}

// DeactivateResult reports what a deactivation changed.
type DeactivateResult struct {
	User     repository.User `json:"user"`
	Released []uuid.UUID     `json:"releasedHotLeadIds"`
}

type Service struct {
	store    repository.Store
	releaser PoolReleaser
	log      *logger.Logger
}

func New(store repository.Store, releaser PoolReleaser, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: store, releaser: releaser, log: log}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (repository.User, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListActiveClosers(ctx context.Context) ([]repository.User, error) {
	return s.store.ListActiveByRole(ctx, httpkit.RoleCloser)
}

// Deactivate disables the account. A closer's open hot leads go back to the
// pool in a single bulk release.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (DeactivateResult, error) {
	user, err := s.store.Deactivate(ctx, id)
	if err != nil {
		return DeactivateResult{}, err
	}

	result := DeactivateResult{User: user, Released: []uuid.UUID{}}
	if user.Role != httpkit.RoleCloser || s.releaser == nil {
		return result, nil
	}

	released, err := s.releaser.BulkRelease(ctx, user.ID)
	if err != nil {
		return DeactivateResult{}, err
	}
	result.Released = released

	s.log.WithContext(ctx).Info("closer deactivated",
		slog.String("user_id", user.ID.String()),
		slog.Int("released", len(released)),
	)
	return result, nil
}
