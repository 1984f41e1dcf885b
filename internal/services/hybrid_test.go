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

func testHybrid(t *testing.T, collab *ml.CollabModel) (*HybridRecommender, pgxmock.PgxPoolIface) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	registry := loadedRegistry(t, map[string]interface{}{
		ml.ModelCollaborative: collab,
		ml.ModelUserSimilarity: topKMap("user", map[int][]ml.Neighbor{
			1: {{ID: 2, Score: 1.0}, {ID: 3, Score: 0.5}},
		}),
	})

	cfg := &config.Config{}
	cfg.Caching.DefaultTTL = 15 * time.Minute
	logger := testLogger()
	c := cache.New(nil, cfg, logger)

	users := store.NewUserStore(mockDB, logger)
	vehicles := store.NewVehicleStore(mockDB, c, config.ModelConfig{}, logger)
	content := NewContentRecommender(registry, vehicles, c, logger)
	collabRec := NewCollabRecommender(registry, logger)

	return NewHybridRecommender(registry, users, vehicles, content, collabRec, logger), mockDB
}

func expectInteractions(mockDB pgxmock.PgxPoolIface, userID int, rows *pgxmock.Rows) {
	mockDB.ExpectQuery(`FROM "UserInteractions"`).WithArgs(userID).WillReturnRows(rows)
}

func TestHybridWeights(t *testing.T) {
	cases := []struct {
		k       int
		content float64
		collab  float64
	}{
		{1, 0.9, 0.1},
		{3, 0.9, 0.1},
		{4, 0.7, 0.3},
		{10, 0.7, 0.3},
		{11, 0.5, 0.5},
	}
	for _, tc := range cases {
		contentWeight, collabWeight := hybridWeights(tc.k)
		assert.Equal(t, tc.content, contentWeight, "k=%d", tc.k)
		assert.Equal(t, tc.collab, collabWeight, "k=%d", tc.k)
	}
}

func TestHybridRecommendBlendsSignals(t *testing.T) {
	collab := &ml.CollabModel{
		UserIndex:   map[int]int{7: 0},
		VehicleIDs:  []int{2, 3},
		UserFactors: [][]float64{{1.0}},
		ItemFactors: [][]float64{{1.0}, {2.0}},
	}
	s, mockDB := testHybrid(t, collab)

	expectInteractions(mockDB, 7, pgxmock.NewRows([]string{"VehicleId", "InteractionType", "Count"}).
		AddRow(1, "view", 2))
	expectVehicleCatalog(mockDB, 1, 2, 3)

	recs, err := s.Recommend(context.Background(), 7, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// One interacted vehicle: content weight 0.9, collab weight 0.1.
	// Content favors vehicle 2, collab favors vehicle 3.
	assert.Equal(t, 2, recs[0].VehicleID)
	assert.InDelta(t, 0.9, recs[0].Score, 0.001)
	assert.Equal(t, 3, recs[1].VehicleID)
	assert.InDelta(t, 0.55, recs[1].Score, 0.001)
	assert.NotEmpty(t, recs[0].Features)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestHybridRecommendNoInteractions(t *testing.T) {
	s, mockDB := testHybrid(t, &ml.CollabModel{UserIndex: map[int]int{}})

	expectInteractions(mockDB, 7, pgxmock.NewRows([]string{"VehicleId", "InteractionType", "Count"}))

	_, err := s.Recommend(context.Background(), 7, 5)

	var insufficient *models.InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestHybridRecommendUserAbsentFromMatrix(t *testing.T) {
	collab := &ml.CollabModel{
		UserIndex:   map[int]int{8: 0},
		VehicleIDs:  []int{2, 3},
		UserFactors: [][]float64{{1.0}},
		ItemFactors: [][]float64{{1.0}, {2.0}},
	}
	s, mockDB := testHybrid(t, collab)

	expectInteractions(mockDB, 7, pgxmock.NewRows([]string{"VehicleId", "InteractionType", "Count"}).
		AddRow(1, "view", 1))
	expectVehicleCatalog(mockDB, 1, 2, 3)

	recs, err := s.Recommend(context.Background(), 7, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2, "content signal alone still serves results")

	assert.Equal(t, 2, recs[0].VehicleID)
	assert.InDelta(t, 0.9, recs[0].Score, 0.001)
	assert.Equal(t, 3, recs[1].VehicleID)
	assert.InDelta(t, 0.45, recs[1].Score, 0.001)
}

func TestContentOnly(t *testing.T) {
	s, mockDB := testHybrid(t, &ml.CollabModel{UserIndex: map[int]int{}})

	expectInteractions(mockDB, 7, pgxmock.NewRows([]string{"VehicleId", "InteractionType", "Count"}).
		AddRow(1, "favorite-added", 1))
	expectVehicleCatalog(mockDB, 1, 2, 3)

	recs, err := s.ContentOnly(context.Background(), 7, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 2, recs[0].VehicleID)
	assert.Equal(t, 1.0, recs[0].Score)
	assert.Equal(t, 3, recs[1].VehicleID)
	assert.Equal(t, 0.5, recs[1].Score)
}
