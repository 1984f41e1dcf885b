package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/middleware"
	"github.com/autofi/recommender/internal/services"
	"github.com/autofi/recommender/pkg/models"
)

type AssistantHandler struct {
	assistant *services.AssistantOrchestrator
	popular   *services.PopularQueryService
	feedback  *services.FeedbackService
	logger    *logrus.Logger
}

func NewAssistantHandler(
	assistant *services.AssistantOrchestrator,
	popular *services.PopularQueryService,
	feedback *services.FeedbackService,
	logger *logrus.Logger,
) *AssistantHandler {
	return &AssistantHandler{
		assistant: assistant,
		popular:   popular,
		feedback:  feedback,
		logger:    logger,
	}
}

// Query serves POST /api/ai/query. The body's user_id must match the
// token identity unless the caller is an admin.
func (h *AssistantHandler) Query(c *gin.Context) {
	var req models.EnrichedAIQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_BODY", err.Error()))
		return
	}

	auth, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "Authentication required"))
		return
	}
	if auth.UserID != req.Query.UserID && !auth.IsAdmin {
		c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "Cannot query on behalf of another user"))
		return
	}

	c.JSON(http.StatusOK, h.assistant.Answer(c.Request.Context(), &req, auth))
}

// Context serves GET /api/ai/context/:user_id.
func (h *AssistantHandler) Context(c *gin.Context) {
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
		c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "Cannot access another user's context"))
		return
	}

	mlCtx, err := h.assistant.MLContext(c.Request.Context(), userID)
	if err != nil {
		var notFound *models.UserNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, errorBody("USER_NOT_FOUND", notFound.Error()))
			return
		}
		h.logger.WithError(err).Error("ML context request failed")
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_SERVER_ERROR", "Failed to load user context"))
		return
	}

	c.JSON(http.StatusOK, mlCtx)
}

// Feedback serves POST /api/ai/feedback.
func (h *AssistantHandler) Feedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_BODY", err.Error()))
		return
	}

	vote, err := h.feedback.Submit(c.Request.Context(), req.MessageID, req.Vote)
	if err != nil {
		var notFound *models.MessageNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, errorBody("MESSAGE_NOT_FOUND", notFound.Error()))
			return
		}
		h.logger.WithError(err).Error("Feedback submission failed")
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_SERVER_ERROR", "Failed to store feedback"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message_id": req.MessageID,
		"vote":       vote,
	})
}

// PopularQueries serves GET /api/ai/popular-queries.
func (h *AssistantHandler) PopularQueries(c *gin.Context) {
	limit := queryInt(c, "limit", 10, 50)

	queries, err := h.popular.Top(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Popular query lookup failed")
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_SERVER_ERROR", "Failed to load popular queries"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"queries": queries})
}
