package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/pkg/models"
)

const (
	popularAllQuery = `SELECT "Id", "Text", "Embedding", "Count" FROM "PopularQueries"`

	popularTopQuery = `
		SELECT "Text", "Count", "LastAsked"
		FROM "PopularQueries"
		ORDER BY "Count" DESC, "LastAsked" DESC
		LIMIT $1`

	popularInsertQuery = `
		INSERT INTO "PopularQueries" ("Text", "Embedding", "Count", "LastAsked")
		VALUES ($1, $2, 1, NOW())`

	popularBumpQuery = `
		UPDATE "PopularQueries"
		SET "Count" = "Count" + 1, "LastAsked" = NOW()
		WHERE "Id" = $1`

	popularBackfillQuery = `UPDATE "PopularQueries" SET "Embedding" = $1 WHERE "Id" = $2`
)

// PopularQueryService tracks what users ask. Questions close enough in
// embedding space merge into one counter instead of piling up as
// near-duplicate rows.
type PopularQueryService struct {
	db         store.Querier
	embeddings *ml.EmbeddingService
	threshold  float64
	logger     *logrus.Logger
}

func NewPopularQueryService(db store.Querier, embeddings *ml.EmbeddingService, threshold float64, logger *logrus.Logger) *PopularQueryService {
	if threshold <= 0 {
		threshold = 0.68
	}
	return &PopularQueryService{
		db:         db,
		embeddings: embeddings,
		threshold:  threshold,
		logger:     logger,
	}
}

// Save records one asked question, merging it into an existing entry
// when a stored question is similar enough.
func (s *PopularQueryService) Save(ctx context.Context, question string) error {
	text := strings.TrimSpace(question)
	if text == "" {
		return nil
	}

	vec := s.embeddings.Embed(text)
	if isZeroVector(vec) {
		// Nothing to compare against; store the raw text alone.
		_, err := s.db.Exec(ctx, popularInsertQuery, text, nil)
		if err != nil {
			return fmt.Errorf("failed to insert popular query: %w", err)
		}
		return nil
	}

	rows, err := s.db.Query(ctx, popularAllQuery)
	if err != nil {
		return fmt.Errorf("failed to load popular queries: %w", err)
	}
	defer rows.Close()

	bestID := 0
	bestSim := 0.0
	for rows.Next() {
		var id, count int
		var stored string
		var rawEmbedding []byte
		if err := rows.Scan(&id, &stored, &rawEmbedding, &count); err != nil {
			return fmt.Errorf("failed to scan popular query row: %w", err)
		}

		storedVec := decodeEmbedding(rawEmbedding)
		if storedVec == nil {
			// Row predates embeddings; compute and backfill.
			storedVec = s.embeddings.Embed(stored)
			if encoded, err := json.Marshal(storedVec); err == nil {
				if _, err := s.db.Exec(ctx, popularBackfillQuery, encoded, id); err != nil {
					s.logger.WithError(err).WithField("id", id).Warn("Failed to backfill query embedding")
				}
			}
		}

		if sim := ml.Cosine(vec, storedVec); sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("popular query scan failed: %w", err)
	}

	if bestID != 0 && bestSim >= s.threshold {
		if _, err := s.db.Exec(ctx, popularBumpQuery, bestID); err != nil {
			return fmt.Errorf("failed to bump popular query: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"id":         bestID,
			"similarity": bestSim,
		}).Debug("Merged question into existing popular query")
		return nil
	}

	encoded, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, popularInsertQuery, text, encoded); err != nil {
		return fmt.Errorf("failed to insert popular query: %w", err)
	}
	return nil
}

// Top returns the most asked questions ordered by count, then recency.
func (s *PopularQueryService) Top(ctx context.Context, limit int) ([]models.PopularQuery, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx, popularTopQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular queries: %w", err)
	}
	defer rows.Close()

	out := make([]models.PopularQuery, 0, limit)
	for rows.Next() {
		var q models.PopularQuery
		if err := rows.Scan(&q.Text, &q.Count, &q.LastAsked); err != nil {
			return nil, fmt.Errorf("failed to scan popular query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func decodeEmbedding(raw []byte) []float64 {
	if len(raw) == 0 {
		return nil
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
		return nil
	}
	return vec
}

func isZeroVector(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
