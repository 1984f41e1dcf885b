package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/pkg/models"
)

const (
	userExistsQuery = `SELECT EXISTS(SELECT 1 FROM "Users" WHERE "Id" = $1)`

	userInteractionsQuery = `
		SELECT "VehicleId", "InteractionType", COUNT(*) AS "Count"
		FROM "UserInteractions"
		WHERE "UserId" = $1
		GROUP BY "VehicleId", "InteractionType"`

	allInteractionsQuery = `
		SELECT "UserId", "VehicleId", "InteractionType", COUNT(*) AS "Count"
		FROM "UserInteractions"
		GROUP BY "UserId", "VehicleId", "InteractionType"`

	recentInteractionsQuery = `
		SELECT "VehicleId", "InteractionType", "CreatedAt"
		FROM "UserInteractions"
		WHERE "UserId" = $1
		ORDER BY "CreatedAt" DESC
		LIMIT 5`

	recentAnalyticsQuery = `
		SELECT "EventType", "EventData", "CreatedAt"
		FROM "AnalyticsEvents"
		WHERE "UserId" = $1
		ORDER BY "CreatedAt" DESC
		LIMIT 5`
)

// UserStore reads user existence, interaction aggregates and the
// activity snapshot the assistant prompts consume.
type UserStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewUserStore(db Querier, logger *logrus.Logger) *UserStore {
	return &UserStore{db: db, logger: logger}
}

func (s *UserStore) UserExists(ctx context.Context, userID int) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, userExistsQuery, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// InteractionsFor returns one weighted affinity row per vehicle the
// user touched.
func (s *UserStore) InteractionsFor(ctx context.Context, userID int) ([]models.Interaction, error) {
	rows, err := s.db.Query(ctx, userInteractionsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user interactions: %w", err)
	}
	defer rows.Close()

	weights := make(map[int]float64)
	for rows.Next() {
		var vehicleID, count int
		var interactionType string
		if err := rows.Scan(&vehicleID, &interactionType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan interaction row: %w", err)
		}
		weights[vehicleID] += models.WeightForInteraction(interactionType) * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("interaction query failed: %w", err)
	}

	interactions := make([]models.Interaction, 0, len(weights))
	for vehicleID, weight := range weights {
		interactions = append(interactions, models.Interaction{VehicleID: vehicleID, Weight: weight})
	}
	return interactions, nil
}

// InteractionsSummary returns every aggregated (user, vehicle, type)
// row. The trainer consumes this.
func (s *UserStore) InteractionsSummary(ctx context.Context) ([]models.InteractionSummary, error) {
	rows, err := s.db.Query(ctx, allInteractionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction summary: %w", err)
	}
	defer rows.Close()

	var summary []models.InteractionSummary
	for rows.Next() {
		var row models.InteractionSummary
		if err := rows.Scan(&row.UserID, &row.VehicleID, &row.InteractionType, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan interaction summary row: %w", err)
		}
		summary = append(summary, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("interaction summary query failed: %w", err)
	}
	return summary, nil
}

// MLContext gathers the recent-activity snapshot for a user.
func (s *UserStore) MLContext(ctx context.Context, userID int) (*models.MLContext, error) {
	interactions, err := s.rowsToMaps(ctx, recentInteractionsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent interactions: %w", err)
	}

	events, err := s.rowsToMaps(ctx, recentAnalyticsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics events: %w", err)
	}

	return &models.MLContext{
		UserInteractions: interactions,
		AnalyticsEvents:  events,
	}, nil
}

func (s *UserStore) rowsToMaps(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRowMaps(rows)
}

// collectRowMaps materializes arbitrary rows as column-keyed maps.
func collectRowMaps(rows pgx.Rows) ([]map[string]interface{}, error) {
	fields := rows.FieldDescriptions()

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fields))
		for i, field := range fields {
			row[string(field.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
