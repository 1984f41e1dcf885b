package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/pkg/models"
)

func testOrchestrator(t *testing.T) (*RecommendationOrchestrator, pgxmock.PgxPoolIface) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Caching.DefaultTTL = 15 * time.Minute
	logger := testLogger()
	c := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg, logger)

	registry := loadedRegistry(t, map[string]interface{}{
		ml.ModelCollaborative: testCollabModel(),
		ml.ModelUserSimilarity: topKMap("user", map[int][]ml.Neighbor{
			1: {{ID: 2, Score: 1.0}, {ID: 3, Score: 0.5}},
		}),
		ml.ModelVehicleSimilarity: topKMap("vehicle", map[int][]ml.Neighbor{
			1: {{ID: 2, Score: 0.9}},
		}),
	})

	users := store.NewUserStore(mockDB, logger)
	vehicles := store.NewVehicleStore(mockDB, c, config.ModelConfig{}, logger)
	content := NewContentRecommender(registry, vehicles, c, logger)
	collab := NewCollabRecommender(registry, logger)
	hybrid := NewHybridRecommender(registry, users, vehicles, content, collab, logger)

	return NewRecommendationOrchestrator(users, vehicles, c, content, collab, hybrid, logger), mockDB
}

func expectUserExists(mockDB pgxmock.PgxPoolIface, userID int, exists bool) {
	mockDB.ExpectQuery(`SELECT EXISTS`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))
}

func TestRecommendComputesOnceThenServesCache(t *testing.T) {
	o, mockDB := testOrchestrator(t)
	ctx := context.Background()

	expectUserExists(mockDB, 7, true)
	expectVehicleCatalog(mockDB, 1, 2, 3)
	expectUserExists(mockDB, 7, true)

	first, err := o.Recommend(ctx, 7, 3, models.StrategyCollaborative)
	require.NoError(t, err)
	assert.Equal(t, "collaborative", first.ModelType)
	require.Len(t, first.Recommendations, 3)
	assert.Equal(t, 2, first.Recommendations[0].VehicleID)

	// Second call hits the cache; no strategy runs again.
	second, err := o.Recommend(ctx, 7, 3, models.StrategyCollaborative)
	require.NoError(t, err)
	assert.Equal(t, first.Recommendations, second.Recommendations)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestRecommendUnknownUser(t *testing.T) {
	o, mockDB := testOrchestrator(t)

	expectUserExists(mockDB, 404, false)

	_, err := o.Recommend(context.Background(), 404, 10, models.StrategyHybrid)

	var notFound *models.UserNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestRecommendUnknownStrategy(t *testing.T) {
	o, mockDB := testOrchestrator(t)

	expectUserExists(mockDB, 7, true)

	_, err := o.Recommend(context.Background(), 7, 10, models.Strategy("quantum"))
	assert.Error(t, err)
}

func TestSimilarValidatesSubjectVehicle(t *testing.T) {
	o, mockDB := testOrchestrator(t)

	expectVehicleCatalog(mockDB, 1, 2)

	resp, err := o.Similar(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.VehicleID)
	require.Len(t, resp.SimilarVehicles, 1)

	_, err = o.Similar(context.Background(), 404, 5)

	var notFound *models.VehicleNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
