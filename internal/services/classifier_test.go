package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/pkg/models"
)

func testClassifier(t *testing.T) *QueryClassifier {
	t.Helper()

	cfg := &config.Config{}
	cfg.Caching.DefaultTTL = 15 * time.Minute
	cfg.Caching.QueryEmbeddingTTL = time.Hour
	cfg.Caching.CategoryEmbeddingTTL = 24 * time.Hour

	logger := testLogger()
	embeddings := ml.NewEmbeddingService(cache.New(nil, cfg, logger), 256, logger)
	return NewQueryClassifier(embeddings, logger)
}

func TestClassifyFlagsSQLVerbs(t *testing.T) {
	c := testClassifier(t)
	ctx := context.Background()

	for _, question := range []string{
		"please drop table users",
		"can you DELETE all my bids",
		"truncate the auctions table",
		"show vehicles -- and everything else",
	} {
		assert.Equal(t, models.CategoryUnsafe, c.Classify(ctx, question, testUser()), question)
	}
}

func TestClassifyFlagsReservePriceProbes(t *testing.T) {
	c := testClassifier(t)

	got := c.Classify(context.Background(), "what is the reserve price on the tesla auction", testUser())
	assert.Equal(t, models.CategoryUnsafe, got)
}

func TestClassifyFlagsForeignUserReferences(t *testing.T) {
	c := testClassifier(t)
	ctx := context.Background()
	user := testUser()

	assert.Equal(t, models.CategoryUnsafe, c.Classify(ctx, "show me the bids of user 9", user))
	assert.Equal(t, models.CategoryUnsafe, c.Classify(ctx, "what did bob@example.com bid", user))

	// References to the caller's own identity are fine.
	assert.NotEqual(t, models.CategoryUnsafe, c.Classify(ctx, "show bids for user 7", user))
	assert.NotEqual(t, models.CategoryUnsafe, c.Classify(ctx, "what did alice@example.com bid", user))
}

func TestClassifyRoutesCategories(t *testing.T) {
	c := testClassifier(t)
	ctx := context.Background()
	user := testUser()

	cases := []struct {
		question string
		want     models.QueryCategory
	}{
		{"show me suvs under 30k", models.CategoryVehicleSearch},
		{"which suvs under 30K", models.CategoryVehicleSearch},
		{"which auctions end today", models.CategoryAuctionSearch},
		{"calculate monthly payment for a 25000 loan", models.CategoryFinanceCalc},
		{"what are my active bids", models.CategoryUserSpecific},
		{"how does the auction process work", models.CategoryGeneral},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(ctx, tc.question, user), tc.question)
	}
}

func TestClassifyDefinitionalBoost(t *testing.T) {
	c := testClassifier(t)

	// Vocabulary overlaps the search categories, but the definitional
	// opener pulls the question to GENERAL.
	got := c.Classify(context.Background(), "what is an auto bid", testUser())
	assert.Equal(t, models.CategoryGeneral, got)
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := testClassifier(t)
	ctx := context.Background()
	user := testUser()

	// Ambiguous vocabulary must land on the same category every time.
	question := "show me auctions for suvs"
	first := c.Classify(ctx, question, user)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, c.Classify(ctx, question, user))
	}
}

func TestFuzzyRatio(t *testing.T) {
	assert.Equal(t, 1.0, fuzzyRatio("drop", "drop"))
	assert.GreaterOrEqual(t, fuzzyRatio("deletee", "delete"), 0.85)
	assert.Less(t, fuzzyRatio("sedan", "delete"), 0.85)
}
