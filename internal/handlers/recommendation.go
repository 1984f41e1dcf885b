package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/middleware"
	"github.com/autofi/recommender/internal/services"
	"github.com/autofi/recommender/pkg/models"
)

const (
	defaultTopN = 10
	maxTopN     = 50
)

type RecommendationHandler struct {
	orchestrator *services.RecommendationOrchestrator
	logger       *logrus.Logger
}

func NewRecommendationHandler(orchestrator *services.RecommendationOrchestrator, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Get serves GET /api/recommendations/user/:user_id. Callers may only
// read their own list unless the token carries the admin claim.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, ok := pathInt(c, "user_id")
	if !ok {
		return
	}

	auth, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "Authentication required"))
		return
	}
	if auth.UserID != userID && !auth.IsAdmin {
		c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "Cannot access another user's recommendations"))
		return
	}

	topN := queryInt(c, "top_n", defaultTopN, maxTopN)

	strategy := models.Strategy(c.DefaultQuery("model_type", string(models.StrategyHybrid)))
	switch strategy {
	case models.StrategyHybrid, models.StrategyContentBased, models.StrategyCollaborative:
	default:
		c.JSON(http.StatusBadRequest, errorBody("INVALID_MODEL_TYPE", "model_type must be hybrid, content_based or collaborative"))
		return
	}

	resp, err := h.orchestrator.Recommend(c.Request.Context(), userID, topN, strategy)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Similar serves GET /api/recommendations/similar/:vehicle_id.
func (h *RecommendationHandler) Similar(c *gin.Context) {
	vehicleID, ok := pathInt(c, "vehicle_id")
	if !ok {
		return
	}

	topN := queryInt(c, "top_n", defaultTopN, maxTopN)

	resp, err := h.orchestrator.Similar(c.Request.Context(), vehicleID, topN)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) writeError(c *gin.Context, err error) {
	var userNotFound *models.UserNotFoundError
	var vehicleNotFound *models.VehicleNotFoundError
	var insufficient *models.InsufficientDataError
	var modelUnavailable *models.ModelNotAvailableError

	switch {
	case errors.As(err, &userNotFound):
		c.JSON(http.StatusNotFound, errorBody("USER_NOT_FOUND", userNotFound.Error()))
	case errors.As(err, &vehicleNotFound):
		c.JSON(http.StatusNotFound, errorBody("VEHICLE_NOT_FOUND", vehicleNotFound.Error()))
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, errorBody("INSUFFICIENT_DATA", insufficient.Error()))
	case errors.Is(err, models.ErrModelLoading):
		c.JSON(http.StatusServiceUnavailable, errorBody("MODEL_LOADING", "Recommendation model is loading, try again shortly"))
	case errors.As(err, &modelUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorBody("MODEL_NOT_AVAILABLE", modelUnavailable.Error()))
	default:
		h.logger.WithError(err).Error("Recommendation request failed")
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_SERVER_ERROR", "Failed to generate recommendations"))
	}
}

func errorBody(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func pathInt(c *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_"+strings.ToUpper(name), "Path parameter "+name+" must be a positive integer"))
		return 0, false
	}
	return value, true
}

func queryInt(c *gin.Context, name string, fallback, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}
