// Package handler exposes pool listing, claim and release endpoints.
package handler

import (
	"net/http"

	leadtransport "salescrm_backend/internal/leads/transport"
	"salescrm_backend/internal/pool/service"
	"salescrm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidID = "invalid hot lead id"

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts listing and claiming on pool and release on hotLeads.
func (h *Handler) RegisterRoutes(pool, hotLeads *gin.RouterGroup) {
	pool.GET("", h.List)
	pool.POST("/:id/claim", httpkit.RequireRole(httpkit.RoleCloser), h.Claim)
	hotLeads.POST("/:id/release", httpkit.RequireRole(httpkit.RoleCloser, httpkit.RoleAdmin), h.Release)
}

// List handles GET /api/v1/pool
func (h *Handler) List(c *gin.Context) {
	items, err := h.svc.ListPool(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, leadtransport.ToHotLeadListResponse(items))
}

// Claim handles POST /api/v1/pool/:id/claim
func (h *Handler) Claim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	hot, err := h.svc.Claim(c.Request.Context(), id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, leadtransport.ToHotLeadResponse(hot))
}

// Release handles POST /api/v1/hot-leads/:id/release
func (h *Handler) Release(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	hot, err := h.svc.Release(c.Request.Context(), id, service.Actor{
		UserID:  identity.UserID(),
		IsAdmin: identity.HasRole(httpkit.RoleAdmin),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, leadtransport.ToHotLeadResponse(hot))
}
