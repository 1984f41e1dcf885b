package services

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/pkg/models"
)

// loadedRegistry registers in-memory artifacts and waits until the
// background loads settle.
func loadedRegistry(t *testing.T, artifacts map[string]interface{}) *ml.ModelRegistry {
	t.Helper()

	registry := ml.NewModelRegistry(testLogger())
	for name, artifact := range artifacts {
		artifact := artifact
		registry.Register(name, func() (interface{}, error) {
			return artifact, nil
		})
	}
	registry.Warm()

	require.Eventually(t, registry.AllLoaded, time.Second, time.Millisecond)
	return registry
}

func testVehicleStore(t *testing.T) (*store.VehicleStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	cfg := &config.Config{}
	cfg.Caching.DefaultTTL = 15 * time.Minute
	logger := testLogger()
	return store.NewVehicleStore(mockDB, cache.New(nil, cfg, logger), config.ModelConfig{}, logger), mockDB
}

func expectVehicleCatalog(mockDB pgxmock.PgxPoolIface, ids ...int) {
	rows := pgxmock.NewRows([]string{
		"Id", "Make", "Model", "Year", "Price", "Mileage",
		"Color", "FuelType", "Transmission", "Status",
	})
	for _, id := range ids {
		rows.AddRow(id, "Toyota", "RAV4", 2021, 28000.0, 35000, "Blue", "Gasoline", "Automatic", "Active")
	}
	mockDB.ExpectQuery(`FROM "Vehicles"`).WithArgs(20000).WillReturnRows(rows)
}

func testContentRecommender(t *testing.T, sim *ml.SimilarityMap, catalogIDs ...int) *ContentRecommender {
	t.Helper()

	registry := loadedRegistry(t, map[string]interface{}{
		ml.ModelVehicleSimilarity: sim,
	})
	vehicles, mockDB := testVehicleStore(t)
	if len(catalogIDs) > 0 {
		expectVehicleCatalog(mockDB, catalogIDs...)
	}

	cfg := &config.Config{}
	cfg.Caching.DefaultTTL = 15 * time.Minute
	logger := testLogger()
	return NewContentRecommender(registry, vehicles, cache.New(nil, cfg, logger), logger)
}

func topKMap(kind string, neighbors map[int][]ml.Neighbor) *ml.SimilarityMap {
	return &ml.SimilarityMap{
		Kind:      kind,
		K:         10,
		TrainedAt: time.Now(),
		Neighbors: neighbors,
	}
}

func TestSimilarReturnsRankedNeighbors(t *testing.T) {
	sim := topKMap("vehicle", map[int][]ml.Neighbor{
		1: {{ID: 2, Score: 0.9}, {ID: 3, Score: 0.8}, {ID: 4, Score: 0.7}},
	})
	s := testContentRecommender(t, sim, 1, 2, 3, 4)

	resp, err := s.Similar(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.VehicleID)
	assert.Equal(t, "similarity_model", resp.Source)
	require.Len(t, resp.SimilarVehicles, 2)
	assert.Equal(t, 2, resp.SimilarVehicles[0].VehicleID)
	assert.Equal(t, 0.9, resp.SimilarVehicles[0].SimilarityScore)
	assert.Equal(t, 3, resp.SimilarVehicles[1].VehicleID)
	assert.NotEmpty(t, resp.SimilarVehicles[0].Features)
}

func TestSimilarUnknownVehicle(t *testing.T) {
	s := testContentRecommender(t, topKMap("vehicle", map[int][]ml.Neighbor{}))

	_, err := s.Similar(context.Background(), 404, 5)

	var notFound *models.VehicleNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSimilarSkipsNeighborsMissingFromCatalog(t *testing.T) {
	sim := topKMap("vehicle", map[int][]ml.Neighbor{
		1: {{ID: 2, Score: 0.9}, {ID: 99, Score: 0.85}, {ID: 3, Score: 0.8}},
	})
	// Vehicle 99 sold since the map was trained.
	s := testContentRecommender(t, sim, 1, 2, 3)

	resp, err := s.Similar(context.Background(), 1, 3)
	require.NoError(t, err)

	ids := []int{resp.SimilarVehicles[0].VehicleID, resp.SimilarVehicles[1].VehicleID}
	assert.Equal(t, []int{2, 3}, ids)
}

func TestSimilarScoresModelNotLoaded(t *testing.T) {
	registry := ml.NewModelRegistry(testLogger())
	vehicles, _ := testVehicleStore(t)

	cfg := &config.Config{}
	cfg.Caching.DefaultTTL = 15 * time.Minute
	logger := testLogger()
	s := NewContentRecommender(registry, vehicles, cache.New(nil, cfg, logger), logger)

	_, err := s.SimilarScores(context.Background(), 1, 5, ml.ModelVehicleSimilarity)

	var notAvailable *models.ModelNotAvailableError
	assert.ErrorAs(t, err, &notAvailable)
}
