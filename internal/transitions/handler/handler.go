// Package handler exposes the status transition endpoints.
package handler

import (
	"net/http"

	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	leadtransport "salescrm_backend/internal/leads/transport"
	"salescrm_backend/internal/transitions/service"
	"salescrm_backend/internal/transitions/transport"
	"salescrm_backend/platform/httpkit"
	"salescrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidID      = "invalid hot lead id"
)

// Handler handles HTTP requests for hot lead transitions.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new transitions handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the transition routes on the hot lead group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.PATCH("/:id/status", h.UpdateStatus)
	rg.PUT("/:id/deal-terms", h.SetDealTerms)
}

// UpdateStatus handles PATCH /api/v1/hot-leads/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, validator.ToAppError(err))
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var status domain.Status
	if req.Status != "" {
		parsed, err := domain.ParseStatus(req.Status)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		status = parsed
	}

	var change *domain.AppointmentChange
	switch {
	case req.AppointmentAt != nil:
		change = &domain.AppointmentChange{At: req.AppointmentAt.UTC()}
	case req.ClearAppointment:
		change = &domain.AppointmentChange{Clear: true}
	}

	actorID := identity.UserID()
	result, err := h.svc.Apply(c.Request.Context(), service.Request{
		HotLeadID:   id,
		Status:      status,
		Appointment: change,
		Note:        req.Note,
		ActorID:     &actorID,
		Origin:      events.OriginUser,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, leadtransport.ToHotLeadResponse(result))
}

// SetDealTerms handles PUT /api/v1/hot-leads/:id/deal-terms
func (h *Handler) SetDealTerms(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.DealTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, validator.ToAppError(err))
		return
	}

	result, err := h.svc.SetDealTerms(c.Request.Context(), id, domain.DealTerms{
		SetupFeeCents:     req.SetupFeeCents,
		RecurringFeeCents: req.RecurringFeeCents,
		ContractMonths:    req.ContractMonths,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, leadtransport.ToHotLeadResponse(result))
}
