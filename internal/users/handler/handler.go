package handler

import (
	"net/http"

	"salescrm_backend/internal/users/service"
	"salescrm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidUserID = "invalid user id"

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the closer directory on users and the account
// administration routes on admin.
func (h *Handler) RegisterRoutes(users, admin *gin.RouterGroup) {
	users.GET("/closers", h.ListClosers)
	admin.POST("/users/:id/deactivate", h.Deactivate)
}

func (h *Handler) ListClosers(c *gin.Context) {
	closers, err := h.svc.ListActiveClosers(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": closers, "total": len(closers)})
}

func (h *Handler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidUserID, nil)
		return
	}

	result, err := h.svc.Deactivate(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
