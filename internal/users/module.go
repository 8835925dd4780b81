// Package users provides the user directory module: active setters and
// closers, their calendar identities and account deactivation.
package users

import (
	apphttp "salescrm_backend/internal/http"
	"salescrm_backend/internal/users/handler"
	"salescrm_backend/internal/users/repository"
	"salescrm_backend/internal/users/service"
	"salescrm_backend/platform/logger"
)

type Module struct {
	handler *handler.Handler
	Service *service.Service
}

func NewModule(store repository.Store, releaser service.PoolReleaser, log *logger.Logger) *Module {
	svc := service.New(store, releaser, log)
	return &Module{handler: handler.New(svc), Service: svc}
}

func (m *Module) Name() string {
	return "users"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/users"), ctx.Admin)
}

var _ apphttp.Module = (*Module)(nil)
