package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/pkg/models"
)

// CollabRecommender scores the whole catalog for one user from the
// factorized interaction matrix.
type CollabRecommender struct {
	registry *ml.ModelRegistry
	logger   *logrus.Logger
}

func NewCollabRecommender(registry *ml.ModelRegistry, logger *logrus.Logger) *CollabRecommender {
	return &CollabRecommender{registry: registry, logger: logger}
}

// Recommend returns the user's top n vehicles by reconstructed
// affinity, min-max normalized to [0,1]. Users absent from the
// training matrix fail with UserNotFound.
func (s *CollabRecommender) Recommend(ctx context.Context, userID, n int) ([]models.ScoredVehicle, error) {
	artifact, err := s.registry.Get(ml.ModelCollaborative)
	if err != nil {
		return nil, err
	}

	model, ok := artifact.(*ml.CollabModel)
	if !ok {
		return nil, fmt.Errorf("artifact %q is not a collaborative model", ml.ModelCollaborative)
	}

	row, ok := model.UserIndex[userID]
	if !ok {
		return nil, &models.UserNotFoundError{UserID: userID}
	}

	scores := model.Scores(row)
	normalizeMinMax(scores)

	ranked := make([]models.ScoredVehicle, len(scores))
	for j, score := range scores {
		ranked[j] = models.ScoredVehicle{VehicleID: model.VehicleIDs[j], SimilarityScore: score}
	}
	sortScoredDesc(ranked)

	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// normalizeMinMax rescales scores into [0,1] in place, dividing by 1.0
// when the vector is flat.
func normalizeMinMax(scores []float64) {
	if len(scores) == 0 {
		return
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	span := max - min
	if span == 0 {
		span = 1.0
	}
	for i := range scores {
		scores[i] = (scores[i] - min) / span
	}
}

// sortScoredDesc orders by score descending, ties broken by id
// ascending so results are deterministic.
func sortScoredDesc(scores []models.ScoredVehicle) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].SimilarityScore != scores[j].SimilarityScore {
			return scores[i].SimilarityScore > scores[j].SimilarityScore
		}
		return scores[i].VehicleID < scores[j].VehicleID
	})
}
