package services

import (
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/internal/database"
	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/internal/validation"
)

type Services struct {
	Auth      *AuthService
	Health    *HealthService
	RateLimit *RateLimitService

	Cache    *cache.Cache
	Registry *ml.ModelRegistry
	Trainer  *ml.Trainer
	Vehicles *store.VehicleStore
	Users    *store.UserStore

	Recommendations *RecommendationOrchestrator
	Assistant       *AssistantOrchestrator
	Popular         *PopularQueryService
	Feedback        *FeedbackService
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	c := cache.New(db.Redis, cfg, logger)

	vehicles := store.NewVehicleStore(db.PG, c, cfg.Models, logger)
	users := store.NewUserStore(db.PG, logger)

	registry := ml.NewModelRegistry(logger)
	ml.RegisterArtifactLoaders(registry, cfg.Models.Path)
	trainer := ml.NewTrainer(vehicles, users, registry, cfg.Models, logger)

	// Warm from disk when artifacts exist; otherwise train once in the
	// background while requests degrade gracefully.
	if ml.ArtifactsExist(cfg.Models.Path) {
		registry.Warm()
	} else {
		logger.Info("No trained model artifacts found, starting initial training")
		trainer.TrainInBackground()
	}

	content := NewContentRecommender(registry, vehicles, c, logger)
	collab := NewCollabRecommender(registry, logger)
	hybrid := NewHybridRecommender(registry, users, vehicles, content, collab, logger)
	recommendations := NewRecommendationOrchestrator(users, vehicles, c, content, collab, hybrid, logger)

	embeddings := ml.NewEmbeddingService(c, cfg.Models.EmbeddingDims, logger)
	classifier := NewQueryClassifier(embeddings, logger)
	llm := NewLLMClient(cfg.OpenAI, logger)
	sqlExec := NewSafeSQLExecutor(db.PG, cfg.Assistant.MaxRows, logger)
	popular := NewPopularQueryService(db.PG, embeddings, cfg.Models.PopularQueryThreshold, logger)

	validator, err := validation.NewLLMResponseValidator()
	if err != nil {
		return nil, err
	}

	assistant := NewAssistantOrchestrator(classifier, llm, sqlExec, popular, validator, users, c, cfg, logger)

	return &Services{
		Auth:            NewAuthService(cfg, logger),
		Health:          NewHealthService(logger, db, registry),
		RateLimit:       NewRateLimitService(cfg, logger, db.Redis),
		Cache:           c,
		Registry:        registry,
		Trainer:         trainer,
		Vehicles:        vehicles,
		Users:           users,
		Recommendations: recommendations,
		Assistant:       assistant,
		Popular:         popular,
		Feedback:        NewFeedbackService(db.PG, logger),
	}, nil
}
