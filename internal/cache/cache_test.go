package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/pkg/models"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		Caching: config.CachingConfig{
			DefaultTTL:           15 * time.Minute,
			QueryEmbeddingTTL:    time.Hour,
			CategoryEmbeddingTTL: 24 * time.Hour,
		},
	}

	return New(client, cfg, logger), mr
}

func TestUserRecommendationsRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, hit := c.GetUserRecommendations(ctx, 42, 10, models.StrategyHybrid)
	assert.False(t, hit)

	resp := &models.RecommendationResponse{
		Recommendations: []models.VehicleRecommendation{
			{VehicleID: 7, Score: 0.91},
			{VehicleID: 3, Score: 0.55},
		},
		ModelType: "hybrid",
	}
	c.SetUserRecommendations(ctx, 42, 10, models.StrategyHybrid, resp)

	got, hit := c.GetUserRecommendations(ctx, 42, 10, models.StrategyHybrid)
	require.True(t, hit)
	assert.Equal(t, resp, got)

	// Different n or model is a different entry.
	_, hit = c.GetUserRecommendations(ctx, 42, 5, models.StrategyHybrid)
	assert.False(t, hit)
	_, hit = c.GetUserRecommendations(ctx, 42, 10, models.StrategyCollaborative)
	assert.False(t, hit)
}

func TestCacheTTLs(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetUserRecommendations(ctx, 1, 10, models.StrategyContentBased, &models.RecommendationResponse{})
	c.SetQueryEmbedding(ctx, "cheap suvs", []float64{0.1, 0.2})
	c.SetCategoryBank(ctx, "VEHICLE_SEARCH", [][]float64{{0.3}})

	assert.Equal(t, 15*time.Minute, mr.TTL("rec:user:1:top:10:model:content_based"))
	assert.Equal(t, time.Hour, mr.TTL("embedding:query:cheap suvs"))
	assert.Equal(t, 24*time.Hour, mr.TTL("embedding:category:VEHICLE_SEARCH"))
}

func TestInvalidateUser(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetUserRecommendations(ctx, 9, 10, models.StrategyHybrid, &models.RecommendationResponse{})
	c.SetUserRecommendations(ctx, 9, 5, models.StrategyCollaborative, &models.RecommendationResponse{})
	c.SetMLContext(ctx, 9, &models.MLContext{})

	// Another user's entries must survive.
	c.SetUserRecommendations(ctx, 10, 10, models.StrategyHybrid, &models.RecommendationResponse{})

	require.NoError(t, c.InvalidateUser(ctx, 9))

	_, hit := c.GetUserRecommendations(ctx, 9, 10, models.StrategyHybrid)
	assert.False(t, hit)
	_, hit = c.GetUserRecommendations(ctx, 9, 5, models.StrategyCollaborative)
	assert.False(t, hit)
	_, hit = c.GetMLContext(ctx, 9)
	assert.False(t, hit)

	_, hit = c.GetUserRecommendations(ctx, 10, 10, models.StrategyHybrid)
	assert.True(t, hit)

	assert.False(t, mr.Exists("context:user:9:ml"))
}

func TestCorruptEntryBehavesLikeMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("rec:vehicle:5:top:10", "{not json"))

	_, hit := c.GetSimilarVehicles(ctx, 5, 10)
	assert.False(t, hit)
	assert.False(t, mr.Exists("rec:vehicle:5:top:10"))
}

func TestNilClientDegradesToNoop(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := New(nil, &config.Config{}, logger)
	ctx := context.Background()

	c.SetVehicleFeatures(ctx, []models.Vehicle{{ID: 1}})
	_, hit := c.GetVehicleFeatures(ctx)
	assert.False(t, hit)

	assert.NoError(t, c.InvalidateUser(ctx, 1))
	assert.Error(t, c.Ping(ctx))
}
