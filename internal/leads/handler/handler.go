// Package handler exposes read-only lead and hot lead endpoints.
package handler

import (
	"context"
	"net/http"

	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/leads/transport"
	"salescrm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidID = "invalid id"

// Reader is the subset of the lead store the handler needs.
type Reader interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error)
	ListPool(ctx context.Context) ([]domain.HotLead, error)
	ListHotLeadsByCloser(ctx context.Context, closerID uuid.UUID) ([]domain.HotLead, error)
}

// Handler handles HTTP requests for leads.
type Handler struct {
	store Reader
}

// New creates a new leads handler.
func New(store Reader) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the hot lead routes.
func (h *Handler) RegisterRoutes(leads, hotLeads *gin.RouterGroup) {
	leads.GET("/:id", h.GetLead)

	hotLeads.GET("/pool", h.ListPool)
	hotLeads.GET("/mine", h.ListMine)
	hotLeads.GET("/:id", h.GetHotLead)
}

// GetLead handles GET /api/v1/leads/:id
func (h *Handler) GetLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	lead, err := h.store.GetLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// GetHotLead handles GET /api/v1/hot-leads/:id
func (h *Handler) GetHotLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	hot, err := h.store.GetHotLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToHotLeadResponse(hot))
}

// ListPool handles GET /api/v1/hot-leads/pool
func (h *Handler) ListPool(c *gin.Context) {
	items, err := h.store.ListPool(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToHotLeadListResponse(items))
}

// ListMine handles GET /api/v1/hot-leads/mine
func (h *Handler) ListMine(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	items, err := h.store.ListHotLeadsByCloser(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToHotLeadListResponse(items))
}
