package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/pkg/models"
)

// ContentRecommender serves vehicle-to-vehicle similarity from the
// precomputed top-K maps.
type ContentRecommender struct {
	registry *ml.ModelRegistry
	vehicles *store.VehicleStore
	cache    *cache.Cache
	logger   *logrus.Logger
}

func NewContentRecommender(registry *ml.ModelRegistry, vehicles *store.VehicleStore, c *cache.Cache, logger *logrus.Logger) *ContentRecommender {
	return &ContentRecommender{
		registry: registry,
		vehicles: vehicles,
		cache:    c,
		logger:   logger,
	}
}

// Similar returns the top n neighbors of a vehicle from the spec-heavy
// similarity map, enriched with catalog features. Neighbor ids missing
// from the catalog are skipped.
func (s *ContentRecommender) Similar(ctx context.Context, vehicleID, n int) (*models.SimilarVehiclesResponse, error) {
	if cached, hit := s.cache.GetSimilarVehicles(ctx, vehicleID, n); hit {
		s.logger.WithField("vehicle_id", vehicleID).Debug("Similar vehicles cache hit")
		return cached, nil
	}

	scores, err := s.SimilarScores(ctx, vehicleID, n, ml.ModelVehicleSimilarity)
	if err != nil {
		return nil, err
	}

	similar := make([]models.SimilarVehicle, 0, len(scores))
	for _, sc := range scores {
		vehicle, err := s.vehicles.VehicleByID(ctx, sc.VehicleID)
		if err != nil {
			continue
		}
		similar = append(similar, models.SimilarVehicle{
			VehicleID:       sc.VehicleID,
			SimilarityScore: sc.SimilarityScore,
			Features:        vehicle.Features(),
		})
	}

	resp := &models.SimilarVehiclesResponse{
		VehicleID:       vehicleID,
		SimilarVehicles: similar,
		Source:          "similarity_model",
	}
	s.cache.SetSimilarVehicles(ctx, vehicleID, n, resp)

	return resp, nil
}

// SimilarScores returns raw (id, score) neighbors from the named map
// without enrichment. The hybrid path uses it against the buyer-facing
// map.
func (s *ContentRecommender) SimilarScores(ctx context.Context, vehicleID, n int, mapName string) ([]models.ScoredVehicle, error) {
	artifact, err := s.registry.Get(mapName)
	if err != nil {
		return nil, err
	}

	sim, ok := artifact.(*ml.SimilarityMap)
	if !ok {
		return nil, fmt.Errorf("artifact %q is not a similarity map", mapName)
	}

	neighbors := sim.TopFor(vehicleID, n)
	if neighbors == nil {
		return nil, &models.VehicleNotFoundError{VehicleID: vehicleID}
	}

	scores := make([]models.ScoredVehicle, len(neighbors))
	for i, nb := range neighbors {
		scores[i] = models.ScoredVehicle{VehicleID: nb.ID, SimilarityScore: nb.Score}
	}
	return scores, nil
}
