// Package booking provides the consultation booking module: free slot lookup
// in the closer's calendar and the booking flow that turns a lead into a hot
// lead.
package booking

import (
	"time"

	"salescrm_backend/internal/booking/handler"
	"salescrm_backend/internal/booking/service"
	"salescrm_backend/internal/events"
	apphttp "salescrm_backend/internal/http"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/validator"
)

// Module represents the booking domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new booking module with all dependencies wired
func NewModule(store service.LeadStore, directory service.Directory, primary service.PrimaryCalendar, bus events.Bus, val *validator.Validator, loc *time.Location, log *logger.Logger, opts ...service.Option) *Module {
	svc := service.New(store, directory, primary, bus, val, loc, log, opts...)
	return &Module{
		handler: handler.New(svc),
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "booking"
}

// RegisterRoutes registers the module's routes under /api/v1/booking
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/booking"))
}

var _ apphttp.Module = (*Module)(nil)
