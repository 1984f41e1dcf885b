package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/messaging"
	"github.com/autofi/recommender/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Assistant      *AssistantHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, services *services.Services, consumer *messaging.InteractionConsumer) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health),
		Recommendation: NewRecommendationHandler(services.Recommendations, logger),
		Assistant:      NewAssistantHandler(services.Assistant, services.Popular, services.Feedback, logger),
		Admin:          NewAdminHandler(logger, services.Trainer, consumer),
	}
}
