// Package pool provides the pool assignment module.
package pool

import (
	"salescrm_backend/internal/events"
	apphttp "salescrm_backend/internal/http"
	"salescrm_backend/internal/pool/handler"
	"salescrm_backend/internal/pool/service"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/metrics"
)

type Module struct {
	handler *handler.Handler
	Service *service.Service
}

func NewModule(store service.Store, bus events.Bus, m *metrics.Metrics, log *logger.Logger) *Module {
	svc := service.New(store, bus, m, log)
	return &Module{handler: handler.New(svc), Service: svc}
}

func (m *Module) Name() string {
	return "pool"
}

// RegisterRoutes registers /api/v1/pool and the release route under /api/v1/hot-leads.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/pool"), ctx.Protected.Group("/hot-leads"))
}

var _ apphttp.Module = (*Module)(nil)
