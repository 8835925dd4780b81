// Package leads provides the lead store module: persistent leads and hot
// leads plus their read-only HTTP surface.
package leads

import (
	apphttp "salescrm_backend/internal/http"
	"salescrm_backend/internal/leads/handler"
	"salescrm_backend/internal/leads/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the leads domain module
type Module struct {
	handler *handler.Handler
	// Store is shared with the booking, matching, transition and pool modules.
	Store repository.Store
}

// NewModule creates a new leads module backed by PostgreSQL.
func NewModule(pool *pgxpool.Pool) *Module {
	return NewModuleWithStore(repository.New(pool))
}

// NewModuleWithStore wires the module on an existing store.
func NewModuleWithStore(store repository.Store) *Module {
	return &Module{
		handler: handler.New(store),
		Store:   store,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes registers the module's routes under /api/v1/leads and /api/v1/hot-leads
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"), ctx.Protected.Group("/hot-leads"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
