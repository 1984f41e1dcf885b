package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/pkg/models"
)

// Key schema. Every cached value in the service goes through one of
// these builders so invalidation patterns stay in one place.
const (
	keyUserRecs        = "rec:user:%d:top:%d:model:%s"
	keyUserRecsPattern = "rec:user:%d:*"
	keyVehicleSimilar  = "rec:vehicle:%d:top:%d"
	keyUserMLContext   = "context:user:%d:ml"
	keyQueryEmbedding  = "embedding:query:%s"
	keyCategoryEmbed   = "embedding:category:%s"
	keyVehicleFeatures = "vehicle_features"
)

// Cache wraps the shared Redis client with the service's key schema and
// TTL policy. A nil Redis client degrades to a no-op cache so the
// service keeps serving from Postgres and the model artifacts.
type Cache struct {
	redis  *redis.Client
	logger *logrus.Logger

	defaultTTL  time.Duration
	queryTTL    time.Duration
	categoryTTL time.Duration
}

func New(redisClient *redis.Client, cfg *config.Config, logger *logrus.Logger) *Cache {
	return &Cache{
		redis:       redisClient,
		logger:      logger,
		defaultTTL:  cfg.Caching.DefaultTTL,
		queryTTL:    cfg.Caching.QueryEmbeddingTTL,
		categoryTTL: cfg.Caching.CategoryEmbeddingTTL,
	}
}

func (c *Cache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.redis == nil {
		return false, nil
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry behaves like a miss; the writer will replace it.
		c.logger.WithError(err).WithField("key", key).Warn("Dropping corrupt cache entry")
		c.redis.Del(ctx, key)
		return false, nil
	}

	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.redis == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.redis.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) GetUserRecommendations(ctx context.Context, userID, n int, model models.Strategy) (*models.RecommendationResponse, bool) {
	var resp models.RecommendationResponse
	hit, err := c.getJSON(ctx, fmt.Sprintf(keyUserRecs, userID, n, model), &resp)
	if err != nil {
		c.logger.WithError(err).Warn("Recommendation cache read failed")
		return nil, false
	}
	return &resp, hit
}

func (c *Cache) SetUserRecommendations(ctx context.Context, userID, n int, model models.Strategy, resp *models.RecommendationResponse) {
	key := fmt.Sprintf(keyUserRecs, userID, n, model)
	if err := c.setJSON(ctx, key, resp, c.defaultTTL); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Recommendation cache write failed")
	}
}

func (c *Cache) GetSimilarVehicles(ctx context.Context, vehicleID, n int) (*models.SimilarVehiclesResponse, bool) {
	var resp models.SimilarVehiclesResponse
	hit, err := c.getJSON(ctx, fmt.Sprintf(keyVehicleSimilar, vehicleID, n), &resp)
	if err != nil {
		c.logger.WithError(err).Warn("Similar vehicles cache read failed")
		return nil, false
	}
	return &resp, hit
}

func (c *Cache) SetSimilarVehicles(ctx context.Context, vehicleID, n int, resp *models.SimilarVehiclesResponse) {
	key := fmt.Sprintf(keyVehicleSimilar, vehicleID, n)
	if err := c.setJSON(ctx, key, resp, c.defaultTTL); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Similar vehicles cache write failed")
	}
}

func (c *Cache) GetMLContext(ctx context.Context, userID int) (*models.MLContext, bool) {
	var mlCtx models.MLContext
	hit, err := c.getJSON(ctx, fmt.Sprintf(keyUserMLContext, userID), &mlCtx)
	if err != nil {
		c.logger.WithError(err).Warn("ML context cache read failed")
		return nil, false
	}
	return &mlCtx, hit
}

func (c *Cache) SetMLContext(ctx context.Context, userID int, mlCtx *models.MLContext) {
	key := fmt.Sprintf(keyUserMLContext, userID)
	if err := c.setJSON(ctx, key, mlCtx, c.defaultTTL); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("ML context cache write failed")
	}
}

func (c *Cache) GetQueryEmbedding(ctx context.Context, normalized string) ([]float64, bool) {
	var vec []float64
	hit, err := c.getJSON(ctx, fmt.Sprintf(keyQueryEmbedding, normalized), &vec)
	if err != nil {
		c.logger.WithError(err).Warn("Query embedding cache read failed")
		return nil, false
	}
	return vec, hit
}

func (c *Cache) SetQueryEmbedding(ctx context.Context, normalized string, vec []float64) {
	key := fmt.Sprintf(keyQueryEmbedding, normalized)
	if err := c.setJSON(ctx, key, vec, c.queryTTL); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Query embedding cache write failed")
	}
}

func (c *Cache) GetCategoryBank(ctx context.Context, category string) ([][]float64, bool) {
	var bank [][]float64
	hit, err := c.getJSON(ctx, fmt.Sprintf(keyCategoryEmbed, category), &bank)
	if err != nil {
		c.logger.WithError(err).Warn("Category embedding cache read failed")
		return nil, false
	}
	return bank, hit
}

func (c *Cache) SetCategoryBank(ctx context.Context, category string, bank [][]float64) {
	key := fmt.Sprintf(keyCategoryEmbed, category)
	if err := c.setJSON(ctx, key, bank, c.categoryTTL); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Category embedding cache write failed")
	}
}

func (c *Cache) GetVehicleFeatures(ctx context.Context) ([]models.Vehicle, bool) {
	var vehicles []models.Vehicle
	hit, err := c.getJSON(ctx, keyVehicleFeatures, &vehicles)
	if err != nil {
		c.logger.WithError(err).Warn("Vehicle features cache read failed")
		return nil, false
	}
	return vehicles, hit
}

func (c *Cache) SetVehicleFeatures(ctx context.Context, vehicles []models.Vehicle) {
	if err := c.setJSON(ctx, keyVehicleFeatures, vehicles, c.defaultTTL); err != nil {
		c.logger.WithError(err).Warn("Vehicle features cache write failed")
	}
}

// InvalidateUser drops every per-user recommendation entry plus the ML
// context snapshot. Uses SCAN so a large keyspace never blocks Redis.
func (c *Cache) InvalidateUser(ctx context.Context, userID int) error {
	if c.redis == nil {
		return nil
	}

	pattern := fmt.Sprintf(keyUserRecsPattern, userID)
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	keys = append(keys, fmt.Sprintf(keyUserMLContext, userID))
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"keys":    len(keys),
	}).Debug("Invalidated user caches")
	return nil
}

// Ping reports cache liveness for the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return c.redis.Ping(ctx).Err()
}
