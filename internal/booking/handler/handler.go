// Package handler exposes the booking endpoints.
package handler

import (
	"net/http"
	"time"

	"salescrm_backend/internal/booking/service"
	"salescrm_backend/internal/booking/transport"
	"salescrm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	dateLayout        = "2006-01-02"
	msgInvalidRequest = "invalid request"
	msgInvalidCloser  = "invalid closerId"
	msgInvalidDate    = "invalid date, expected YYYY-MM-DD"
)

// Handler handles HTTP requests for slot lookup and booking.
type Handler struct {
	svc *service.Service
}

// New creates a new booking handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the booking routes on rg. Booking is limited to
// setters and admins, slot lookup is open to closers as well.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/slots", httpkit.RequireRole(httpkit.RoleSetter, httpkit.RoleCloser, httpkit.RoleAdmin), h.ListSlots)
	rg.POST("", httpkit.RequireRole(httpkit.RoleSetter, httpkit.RoleAdmin), h.Book)
}

// ListSlots handles GET /api/v1/booking/slots?closerId=&date=
func (h *Handler) ListSlots(c *gin.Context) {
	closerID, err := uuid.Parse(c.Query("closerId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidCloser, nil)
		return
	}
	date, err := time.ParseInLocation(dateLayout, c.Query("date"), h.svc.Location())
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidDate, nil)
		return
	}

	slots, err := h.svc.AvailableSlots(c.Request.Context(), closerID, date)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.SlotsResponse{
		CloserID: closerID,
		Date:     date.Format(dateLayout),
		Slots:    make([]transport.SlotResponse, 0, len(slots)),
	}
	for _, slot := range slots {
		resp.Slots = append(resp.Slots, transport.SlotResponse{Start: slot.Start, End: slot.End})
	}
	httpkit.OK(c, resp)
}

// Book handles POST /api/v1/booking
func (h *Handler) Book(c *gin.Context) {
	var req transport.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	setterID := identity.UserID()

	result, err := h.svc.Book(c.Request.Context(), service.BookRequest{
		LeadID:            req.LeadID,
		CloserID:          req.CloserID,
		SetterID:          &setterID,
		SlotStart:         req.SlotStart,
		CompanyName:       req.CompanyName,
		ContactName:       req.ContactName,
		ContactEmail:      req.ContactEmail,
		ContactPhone:      req.ContactPhone,
		Problem:           req.Problem,
		AppointmentMedium: req.AppointmentMedium,
		MeetingLink:       req.MeetingLink,
		Priority:          req.Priority,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	httpkit.Created(c, transport.BookResponse{HotLead: result.HotLead, Warnings: warnings})
}
