// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"salescrm_backend/internal/events"
	"salescrm_backend/platform/config"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/metrics"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP and JWT settings only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness checks (DB ping).
	Health HealthChecker
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// Metrics records request counters and latencies. Optional.
	Metrics *metrics.Metrics
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
