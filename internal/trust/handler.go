package trust

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/craftlink/sentinel/internal/authz"
	"github.com/craftlink/sentinel/pkg/common"
	"github.com/craftlink/sentinel/pkg/middleware"
)

type Handler struct {
	service    ScoreService
	authorizer authz.Authorizer
}

func NewHandler(service ScoreService, authorizer authz.Authorizer) *Handler {
	return &Handler{service: service, authorizer: authorizer}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	trust := r.Group("/trust")
	trust.GET("/scores/:user_id", h.GetScore)
	trust.POST("/scores/:user_id/recompute", h.Recompute)
	trust.POST("/scores/recompute", h.RecomputeBatch)
}

// RecomputeBatchRequest is the payload for bulk rescoring.
type RecomputeBatchRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" validate:"required,min=1,max=500"`
}

// GetScore returns the stored trust score. Users may read their own
// score; admins may read anyone's.
// GET /api/v1/trust/scores/:user_id
func (h *Handler) GetScore(c *gin.Context) {
	callerID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid user ID")
		return
	}

	if callerID != userID {
		decision, err := h.authorizer.Authorize(c.Request.Context(), callerID)
		if err != nil {
			common.ErrorResponse(c, http.StatusInternalServerError, "authorization check failed")
			return
		}
		if !decision.Allowed {
			common.ErrorResponse(c, http.StatusForbidden, "admin role required")
			return
		}
	}

	score, err := h.service.GetScore(c.Request.Context(), userID)
	if err != nil {
		common.ErrorResponse(c, http.StatusNotFound, "trust score not found")
		return
	}
	common.SuccessResponse(c, score)
}

// Recompute rescores one user on demand. Admin only.
// POST /api/v1/trust/scores/:user_id/recompute
func (h *Handler) Recompute(c *gin.Context) {
	callerID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	decision, err := h.authorizer.Authorize(c.Request.Context(), callerID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "authorization check failed")
		return
	}
	if !decision.Allowed {
		common.ErrorResponse(c, http.StatusForbidden, "admin role required")
		return
	}

	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid user ID")
		return
	}

	score, err := h.service.Recompute(c.Request.Context(), userID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to recompute trust score")
		return
	}
	common.SuccessResponse(c, score)
}

// RecomputeBatch rescores a list of users on demand. Admin only.
// POST /api/v1/trust/scores/recompute
func (h *Handler) RecomputeBatch(c *gin.Context) {
	callerID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	decision, err := h.authorizer.Authorize(c.Request.Context(), callerID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "authorization check failed")
		return
	}
	if !decision.Allowed {
		common.ErrorResponse(c, http.StatusForbidden, "admin role required")
		return
	}

	var req RecomputeBatchRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	scored, err := h.service.RecomputeBatch(c.Request.Context(), req.UserIDs)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to recompute trust scores")
		return
	}
	common.SuccessResponse(c, gin.H{"scored": scored})
}
