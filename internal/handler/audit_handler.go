package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vantage-academy/portal-api/internal/models"
	"github.com/vantage-academy/portal-api/internal/service"
	"github.com/vantage-academy/portal-api/pkg/response"
)

// AuditHandler exposes the admin audit log listing.
type AuditHandler struct {
	service *service.AuditQueryService
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(svc *service.AuditQueryService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit log entries
// @Tags Audit
// @Produce json
// @Param actor_id query string false "Filter by actor"
// @Param action query string false "Filter by action"
// @Param entity_type query string false "Filter by entity type"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter := models.AuditFilter{
		ActorID:    c.Query("actor_id"),
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}

	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res.Entries, &res.Pagination)
}
