// Package transitions provides the hot lead status transition module.
package transitions

import (
	"time"

	"salescrm_backend/internal/events"
	apphttp "salescrm_backend/internal/http"
	"salescrm_backend/internal/transitions/handler"
	"salescrm_backend/internal/transitions/service"
	"salescrm_backend/platform/httpkit"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/validator"
)

// Module represents the transitions domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new transitions module with all dependencies wired
func NewModule(store service.Store, bus events.Bus, loc *time.Location, val *validator.Validator, log *logger.Logger, opts ...service.Option) *Module {
	svc := service.New(store, bus, loc, log, opts...)
	return &Module{
		handler: handler.New(svc, val),
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "transitions"
}

// RegisterRoutes registers the module's routes under /api/v1/hot-leads
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	hotLeads := ctx.Protected.Group("/hot-leads")
	hotLeads.Use(httpkit.RequireRole(httpkit.RoleCloser, httpkit.RoleAdmin))
	m.handler.RegisterRoutes(hotLeads)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
