// Package calendly integrates the secondary scheduler: inbound invitee
// webhooks that cancel or move appointments, and the outbound booking client.
package calendly

import (
	"time"

	apphttp "salescrm_backend/internal/http"
	"salescrm_backend/platform/logger"
)

// Module is the webhook intake module implementing http.Module.
type Module struct {
	handler *Handler
	Service *Service
}

// NewModule wires the routing service and its HTTP handler.
// resolver may be nil when no API token is configured.
func NewModule(matcher EventMatcher, transitions Transitioner, resolver InviteeResolver, loc *time.Location, log *logger.Logger, opts ...HandlerOption) *Module {
	svc := NewService(matcher, transitions, resolver, loc, log)
	return &Module{
		handler: NewHandler(svc, log, opts...),
		Service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "calendly"
}

// RegisterRoutes mounts the public webhook endpoint. Deliveries are signed,
// not JWT authenticated.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhooks")
	if ctx.WebhookRateLimiter != nil {
		group.Use(ctx.WebhookRateLimiter.RateLimit())
	}
	group.POST("/calendly", m.handler.HandleWebhook)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
