package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/pkg/models"
)

// HybridRecommender blends the content and collaborative signals with
// cold-start aware weights.
type HybridRecommender struct {
	registry *ml.ModelRegistry
	users    *store.UserStore
	vehicles *store.VehicleStore
	content  *ContentRecommender
	collab   *CollabRecommender
	logger   *logrus.Logger
}

func NewHybridRecommender(
	registry *ml.ModelRegistry,
	users *store.UserStore,
	vehicles *store.VehicleStore,
	content *ContentRecommender,
	collab *CollabRecommender,
	logger *logrus.Logger,
) *HybridRecommender {
	return &HybridRecommender{
		registry: registry,
		users:    users,
		vehicles: vehicles,
		content:  content,
		collab:   collab,
		logger:   logger,
	}
}

// hybridWeights implements the cold-start routing table. k is the
// number of vehicles the user has interacted with.
func hybridWeights(k int) (contentWeight, collabWeight float64) {
	switch {
	case k <= 3:
		return 0.9, 0.1
	case k <= 10:
		return 0.7, 0.3
	default:
		return 0.5, 0.5
	}
}

// Recommend produces the blended top n for a user. Zero interactions
// fail with InsufficientData; users missing from the collaborative
// matrix fall back to the content signal alone.
func (s *HybridRecommender) Recommend(ctx context.Context, userID, n int) ([]models.VehicleRecommendation, error) {
	interactions, err := s.users.InteractionsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(interactions) == 0 {
		return nil, &models.InsufficientDataError{UserID: userID}
	}

	contentWeight, collabWeight := hybridWeights(len(interactions))

	// Both artifacts must be resident before scoring; kick their loads
	// off concurrently so a cold process warms both at once.
	var g errgroup.Group
	g.Go(func() error {
		_, err := s.registry.Get(ml.ModelUserSimilarity)
		return err
	})
	g.Go(func() error {
		_, err := s.registry.Get(ml.ModelCollaborative)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overFetch := 3 * n

	collabScores := make(map[int]float64)
	ranked, err := s.collab.Recommend(ctx, userID, overFetch)
	switch {
	case err == nil:
		for _, sc := range ranked {
			collabScores[sc.VehicleID] = sc.SimilarityScore
		}
	case isUserNotFound(err):
		s.logger.WithField("user_id", userID).Debug("User absent from collaborative matrix, content-only hybrid")
	default:
		return nil, err
	}

	// Content signal: each interacted vehicle votes for its neighbors
	// in the buyer-facing map, weighted by the interaction affinity.
	contentScores := make(map[int]float64)
	for _, interaction := range interactions {
		neighbors, err := s.content.SimilarScores(ctx, interaction.VehicleID, overFetch, ml.ModelUserSimilarity)
		if err != nil {
			var notFound *models.VehicleNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		for _, nb := range neighbors {
			contentScores[nb.VehicleID] += interaction.Weight * nb.SimilarityScore
		}
	}

	normalizeByMax(contentScores)

	// Weighted union of both score sets.
	hybrid := make(map[int]float64, len(contentScores)+len(collabScores))
	for id, score := range contentScores {
		hybrid[id] += contentWeight * score
	}
	for id, score := range collabScores {
		hybrid[id] += collabWeight * score
	}

	combined := make([]models.ScoredVehicle, 0, len(hybrid))
	for id, score := range hybrid {
		combined = append(combined, models.ScoredVehicle{VehicleID: id, SimilarityScore: score})
	}
	sortScoredDesc(combined)

	recommendations := make([]models.VehicleRecommendation, 0, n)
	for _, sc := range combined {
		if len(recommendations) == n {
			break
		}
		vehicle, err := s.vehicles.VehicleByID(ctx, sc.VehicleID)
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
}

// ContentOnly scores a user purely from the content signal, for the
// content_based strategy.
func (s *HybridRecommender) ContentOnly(ctx context.Context, userID, n int) ([]models.VehicleRecommendation, error) {
	interactions, err := s.users.InteractionsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(interactions) == 0 {
		return nil, &models.InsufficientDataError{UserID: userID}
	}

	contentScores := make(map[int]float64)
	for _, interaction := range interactions {
		neighbors, err := s.content.SimilarScores(ctx, interaction.VehicleID, 3*n, ml.ModelUserSimilarity)
		if err != nil {
			var notFound *models.VehicleNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		for _, nb := range neighbors {
			contentScores[nb.VehicleID] += interaction.Weight * nb.SimilarityScore
		}
	}
	normalizeByMax(contentScores)

	combined := make([]models.ScoredVehicle, 0, len(contentScores))
	for id, score := range contentScores {
		combined = append(combined, models.ScoredVehicle{VehicleID: id, SimilarityScore: score})
	}
	sortScoredDesc(combined)

	recommendations := make([]models.VehicleRecommendation, 0, n)
	for _, sc := range combined {
		if len(recommendations) == n {
			break
		}
		vehicle, err := s.vehicles.VehicleByID(ctx, sc.VehicleID)
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
}

func normalizeByMax(scores map[int]float64) {
	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max == 0 {
		return
	}
	for id := range scores {
		scores[id] /= max
	}
}

func isUserNotFound(err error) bool {
	var notFound *models.UserNotFoundError
	return errors.As(err, &notFound)
}
