package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/pkg/models"
)

// strategyFunc produces the recommendation list for one strategy.
type strategyFunc func(ctx context.Context, userID, n int) ([]models.VehicleRecommendation, error)

// RecommendationOrchestrator is the entry point for recommendation
// requests: it validates the subject, consults the cache and
// dispatches to the selected strategy.
type RecommendationOrchestrator struct {
	users      *store.UserStore
	vehicles   *store.VehicleStore
	cache      *cache.Cache
	content    *ContentRecommender
	strategies map[models.Strategy]strategyFunc
	logger     *logrus.Logger
}

func NewRecommendationOrchestrator(
	users *store.UserStore,
	vehicles *store.VehicleStore,
	c *cache.Cache,
	content *ContentRecommender,
	collab *CollabRecommender,
	hybrid *HybridRecommender,
	logger *logrus.Logger,
) *RecommendationOrchestrator {
	o := &RecommendationOrchestrator{
		users:    users,
		vehicles: vehicles,
		cache:    c,
		content:  content,
		logger:   logger,
	}

	// The factory holds only the strategy entry points, not the
	// container that built them.
	o.strategies = map[models.Strategy]strategyFunc{
		models.StrategyHybrid:       hybrid.Recommend,
		models.StrategyContentBased: hybrid.ContentOnly,
		models.StrategyCollaborative: func(ctx context.Context, userID, n int) ([]models.VehicleRecommendation, error) {
			ranked, err := collab.Recommend(ctx, userID, n)
			if err != nil {
				return nil, err
			}
			recommendations := make([]models.VehicleRecommendation, 0, len(ranked))
			for _, sc := range ranked {
				vehicle, err := vehicles.VehicleByID(ctx, sc.VehicleID)
				if err != nil {
					continue
				}
				recommendations = append(recommendations, models.VehicleRecommendation{
					VehicleID: sc.VehicleID,
					Score:     sc.SimilarityScore,
					Features:  vehicle.Features(),
				})
			}
			return recommendations, nil
		},
	}

	return o
}

// Recommend serves the per-user recommendation list for a strategy.
func (o *RecommendationOrchestrator) Recommend(ctx context.Context, userID, n int, strategy models.Strategy) (*models.RecommendationResponse, error) {
	exists, err := o.users.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &models.UserNotFoundError{UserID: userID}
	}

	if cached, hit := o.cache.GetUserRecommendations(ctx, userID, n, strategy); hit {
		o.logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"strategy": strategy,
		}).Debug("Recommendation cache hit")
		return cached, nil
	}

	run, ok := o.strategies[strategy]
	if !ok {
		return nil, fmt.Errorf("unknown recommendation strategy %q", strategy)
	}

	recommendations, err := run(ctx, userID, n)
	if err != nil {
		return nil, err
	}

	resp := &models.RecommendationResponse{
		Recommendations: recommendations,
		ModelType:       string(strategy),
	}
	o.cache.SetUserRecommendations(ctx, userID, n, strategy, resp)

	return resp, nil
}

// Similar serves the per-vehicle similarity list.
func (o *RecommendationOrchestrator) Similar(ctx context.Context, vehicleID, n int) (*models.SimilarVehiclesResponse, error) {
	if _, err := o.vehicles.VehicleByID(ctx, vehicleID); err != nil {
		return nil, err
	}
	return o.content.Similar(ctx, vehicleID, n)
}
