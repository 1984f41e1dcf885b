package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/messaging"
	"github.com/autofi/recommender/internal/middleware"
	"github.com/autofi/recommender/internal/ml"
)

// AdminHandler exposes operator actions. Every route requires the
// admin claim.
type AdminHandler struct {
	logger   *logrus.Logger
	trainer  *ml.Trainer
	consumer *messaging.InteractionConsumer
}

func NewAdminHandler(logger *logrus.Logger, trainer *ml.Trainer, consumer *messaging.InteractionConsumer) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		trainer:  trainer,
		consumer: consumer,
	}
}

// Retrain kicks off a background training run over the current catalog
// and interaction data.
func (h *AdminHandler) Retrain(c *gin.Context) {
	auth, ok := middleware.UserFromContext(c)
	if !ok || !auth.IsAdmin {
		c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "Admin access required"))
		return
	}

	h.logger.WithField("admin_id", auth.UserID).Info("Manual retraining requested")
	h.trainer.TrainInBackground()

	c.JSON(http.StatusAccepted, gin.H{"status": "training_started"})
}

// ConsumerStats reports the Kafka reader counters, or 404 when the
// consumer is disabled.
func (h *AdminHandler) ConsumerStats(c *gin.Context) {
	auth, ok := middleware.UserFromContext(c)
	if !ok || !auth.IsAdmin {
		c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "Admin access required"))
		return
	}

	if h.consumer == nil {
		c.JSON(http.StatusNotFound, errorBody("CONSUMER_DISABLED", "Interaction consumer is not enabled"))
		return
	}

	c.JSON(http.StatusOK, h.consumer.Stats())
}
