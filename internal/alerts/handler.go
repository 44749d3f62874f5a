package alerts

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/craftlink/sentinel/internal/authz"
	"github.com/craftlink/sentinel/pkg/common"
	"github.com/craftlink/sentinel/pkg/middleware"
	"github.com/craftlink/sentinel/pkg/pagination"
)

// Handler exposes the operator alert feed.
type Handler struct {
	repo       AlertRepository
	authorizer authz.Authorizer
}

func NewHandler(repo AlertRepository, authorizer authz.Authorizer) *Handler {
	return &Handler{repo: repo, authorizer: authorizer}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	admin.GET("/alerts", h.ListAlerts)
	admin.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
}

func (h *Handler) requireAdmin(c *gin.Context) bool {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return false
	}
	decision, err := h.authorizer.Authorize(c.Request.Context(), userID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "authorization check failed")
		return false
	}
	if !decision.Allowed {
		common.ErrorResponse(c, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

// ListAlerts returns the alert feed, newest first
// GET /api/v1/admin/alerts?unacknowledged=true
func (h *Handler) ListAlerts(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	params := pagination.ParseParams(c)
	unacknowledgedOnly := c.Query("unacknowledged") == "true"

	alerts, total, err := h.repo.ListAlerts(c.Request.Context(), unacknowledgedOnly, params.Limit, params.Offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	common.PaginatedSuccessResponse(c, alerts, total, params.Limit, params.Offset)
}

// AcknowledgeAlert marks an alert as seen by an operator
// POST /api/v1/admin/alerts/:id/acknowledge
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid alert id")
		return
	}
	if err := h.repo.AcknowledgeAlert(c.Request.Context(), alertID); err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}
	common.SuccessResponse(c, gin.H{"acknowledged": true})
}
