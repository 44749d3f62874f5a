package farming

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/craftlink/sentinel/internal/authz"
	"github.com/craftlink/sentinel/internal/signals"
	"github.com/craftlink/sentinel/pkg/common"
	"github.com/craftlink/sentinel/pkg/middleware"
	"github.com/craftlink/sentinel/pkg/pagination"
)

// Handler exposes the admin investigation API.
type Handler struct {
	service    CaseService
	scanner    signals.ScannerService
	authorizer authz.Authorizer
}

// CaseService is the service surface the handler needs.
type CaseService interface {
	GetCase(ctx context.Context, caseKey string) (*FarmingCase, error)
	ListCases(ctx context.Context, status CaseStatus, limit, offset int) ([]*FarmingCase, int64, error)
	ResolveCase(ctx context.Context, caseKey string, resolvedBy uuid.UUID, status CaseStatus, resolution string) error
	AppealCase(ctx context.Context, caseKey string, reason string) error
}

func NewHandler(service CaseService, scanner signals.ScannerService, authorizer authz.Authorizer) *Handler {
	return &Handler{service: service, scanner: scanner, authorizer: authorizer}
}

// RegisterRoutes mounts the admin case API. All routes require an
// authenticated admin.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	admin.GET("/cases", h.ListCases)
	admin.GET("/cases/:key", h.GetCase)
	admin.POST("/cases/:key/resolve", h.ResolveCase)
	admin.POST("/cases/:key/appeal", h.AppealCase)
	admin.GET("/clusters", h.ListClusters)
	admin.GET("/clusters/:key", h.GetCluster)
}

// requireAdmin resolves the caller and checks the stored admin role.
// Returns the caller ID and false when the request has been rejected.
func (h *Handler) requireAdmin(c *gin.Context) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	decision, err := h.authorizer.Authorize(c.Request.Context(), userID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "authorization check failed")
		return uuid.Nil, false
	}
	if !decision.Allowed {
		common.ErrorResponse(c, http.StatusForbidden, "admin role required")
		return uuid.Nil, false
	}
	return userID, true
}

// ListCases lists farming cases, optionally filtered by status
// GET /api/v1/admin/cases?status=detected
func (h *Handler) ListCases(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}

	params := pagination.ParseParams(c)
	status := CaseStatus(c.Query("status"))

	cases, total, err := h.service.ListCases(c.Request.Context(), status, params.Limit, params.Offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list cases")
		return
	}
	common.PaginatedSuccessResponse(c, cases, total, params.Limit, params.Offset)
}

// GetCase fetches a single case
// GET /api/v1/admin/cases/:key
func (h *Handler) GetCase(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}

	farmingCase, err := h.service.GetCase(c.Request.Context(), c.Param("key"))
	if err != nil {
		common.ErrorResponse(c, http.StatusNotFound, "case not found")
		return
	}
	common.SuccessResponse(c, farmingCase)
}

// ResolveCaseRequest is an investigator verdict.
type ResolveCaseRequest struct {
	Status     CaseStatus `json:"status" validate:"required,case_status"`
	Resolution string     `json:"resolution" validate:"required"`
}

// ResolveCase records a verdict on a case
// POST /api/v1/admin/cases/:key/resolve
func (h *Handler) ResolveCase(c *gin.Context) {
	adminID, ok := h.requireAdmin(c)
	if !ok {
		return
	}

	var req ResolveCaseRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	if err := h.service.ResolveCase(c.Request.Context(), c.Param("key"), adminID, req.Status, req.Resolution); err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to resolve case")
		return
	}
	common.SuccessResponse(c, gin.H{"message": "case resolved"})
}

// AppealCaseRequest reopens a decided case.
type AppealCaseRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// AppealCase moves a decided case into the appeal queue
// POST /api/v1/admin/cases/:key/appeal
func (h *Handler) AppealCase(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}

	var req AppealCaseRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	if err := h.service.AppealCase(c.Request.Context(), c.Param("key"), req.Reason); err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to appeal case")
		return
	}
	common.SuccessResponse(c, gin.H{"message": "case appealed"})
}

// ListClusters lists detected clusters
// GET /api/v1/admin/clusters?status=suspected
func (h *Handler) ListClusters(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}

	params := pagination.ParseParams(c)
	status := signals.ClusterStatus(c.Query("status"))

	clusters, total, err := h.scanner.ListClusters(c.Request.Context(), status, params.Limit, params.Offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list clusters")
		return
	}
	common.PaginatedSuccessResponse(c, clusters, total, params.Limit, params.Offset)
}

// GetCluster fetches a single cluster
// GET /api/v1/admin/clusters/:key
func (h *Handler) GetCluster(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}

	cluster, err := h.scanner.GetCluster(c.Request.Context(), c.Param("key"))
	if err != nil {
		common.ErrorResponse(c, http.StatusNotFound, "cluster not found")
		return
	}
	common.SuccessResponse(c, cluster)
}
