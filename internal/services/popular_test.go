package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/internal/ml"
)

func testPopularService(t *testing.T) (*PopularQueryService, pgxmock.PgxPoolIface, *ml.EmbeddingService) {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	cfg := &config.Config{}
	cfg.Caching.DefaultTTL = 15 * time.Minute
	cfg.Caching.QueryEmbeddingTTL = time.Hour
	cfg.Caching.CategoryEmbeddingTTL = 24 * time.Hour

	logger := testLogger()
	embeddings := ml.NewEmbeddingService(cache.New(nil, cfg, logger), 256, logger)
	return NewPopularQueryService(mockDB, embeddings, 0.68, logger), mockDB, embeddings
}

func TestSaveMergesSimilarQuestions(t *testing.T) {
	s, mockDB, embeddings := testPopularService(t)

	stored, err := json.Marshal(embeddings.Embed("show me suvs under 30k"))
	require.NoError(t, err)

	mockDB.ExpectQuery(`FROM "PopularQueries"`).
		WillReturnRows(pgxmock.NewRows([]string{"Id", "Text", "Embedding", "Count"}).
			AddRow(3, "show me suvs under 30k", stored, 5))
	mockDB.ExpectExec(`SET "Count" = "Count" \+ 1`).
		WithArgs(3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.Save(context.Background(), "show me suvs under 30k please"))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSaveInsertsDistinctQuestions(t *testing.T) {
	s, mockDB, _ := testPopularService(t)

	mockDB.ExpectQuery(`FROM "PopularQueries"`).
		WillReturnRows(pgxmock.NewRows([]string{"Id", "Text", "Embedding", "Count"}))
	mockDB.ExpectExec(`INSERT INTO "PopularQueries"`).
		WithArgs("which auctions end today", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), "which auctions end today"))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSaveBackfillsMissingEmbeddings(t *testing.T) {
	s, mockDB, _ := testPopularService(t)

	mockDB.ExpectQuery(`FROM "PopularQueries"`).
		WillReturnRows(pgxmock.NewRows([]string{"Id", "Text", "Embedding", "Count"}).
			AddRow(1, "which auctions end today", []byte(nil), 2))
	mockDB.ExpectExec(`SET "Embedding" = \$1`).
		WithArgs(pgxmock.AnyArg(), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockDB.ExpectExec(`SET "Count" = "Count" \+ 1`).
		WithArgs(1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.Save(context.Background(), "which auctions end today"))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSaveIgnoresBlankQuestions(t *testing.T) {
	s, mockDB, _ := testPopularService(t)

	require.NoError(t, s.Save(context.Background(), "   "))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestTopReturnsOrderedQuestions(t *testing.T) {
	s, mockDB, _ := testPopularService(t)

	asked := time.Now()
	mockDB.ExpectQuery(`ORDER BY "Count" DESC`).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"Text", "Count", "LastAsked"}).
			AddRow("show me suvs under 30k", 12, &asked).
			AddRow("which auctions end today", 4, &asked))

	out, err := s.Top(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "show me suvs under 30k", out[0].Text)
	assert.Equal(t, 12, out[0].Count)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
