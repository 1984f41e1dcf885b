package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/pkg/models"
)

// RateLimitService enforces the per-user, per-endpoint request budget
// with a Redis sliding window.
type RateLimitService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
	}
}

// CheckLimit records the current request and reports the window state.
func (s *RateLimitService) CheckLimit(userID int, endpoint string) (*models.RateLimitInfo, error) {
	limit := s.config.Auth.RateLimit.Default
	window := s.config.Auth.RateLimit.Window

	now := time.Now()
	permissive := &models.RateLimitInfo{
		Limit:     limit,
		Remaining: limit - 1,
		ResetTime: now.Add(window).Unix(),
	}
	if s.redisClient == nil {
		return permissive, nil
	}

	key := fmt.Sprintf("rate_limit:user:%d:%s", userID, endpoint)
	windowStart := now.Add(-window)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.redisClient.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		// Fail open when Redis is down
		return permissive, nil
	}

	remaining := limit - int(countCmd.Val()) - 1
	if remaining < 0 {
		remaining = 0
	}

	return &models.RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(window).Unix(),
	}, nil
}

// IsAllowed reports whether the request fits inside the window.
func (s *RateLimitService) IsAllowed(userID int, endpoint string) (bool, *models.RateLimitInfo, error) {
	info, err := s.CheckLimit(userID, endpoint)
	if err != nil {
		return false, nil, err
	}
	return info.Remaining > 0, info, nil
}
