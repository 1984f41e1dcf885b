package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/ml"
	"github.com/autofi/recommender/pkg/models"
)

// forbiddenKeywords are SQL verbs a user question must never smuggle
// in. Shared with the SQL guard.
var forbiddenKeywords = []string{"drop", "delete", "alter", "insert", "update", "truncate", "exec", "--"}

// categoryExamples is the fixed bank each incoming question is scored
// against.
var categoryExamples = map[models.QueryCategory][]string{
	models.CategoryGeneral: {
		"what is an auto bid",
		"how does the auction process work",
		"explain the difference between reserve and no reserve auctions",
		"what does buy it now mean",
		"how do i place a bid",
		"what happens if i win an auction",
	},
	models.CategoryVehicleSearch: {
		"show me suvs under 30k",
		"find sedans with low mileage",
		"any electric cars for sale",
		"list trucks from 2020 or newer",
		"which vehicles have automatic transmission",
		"cheapest cars available right now",
	},
	models.CategoryAuctionSearch: {
		"which auctions end today",
		"show auctions with no bids yet",
		"what are the most active auctions",
		"auctions ending in the next hour",
		"show me live auctions for trucks",
		"how many bids does the tesla auction have",
	},
	models.CategoryFinanceCalc: {
		"calculate monthly payment for a 25000 loan",
		"what would financing cost at 6 percent apr",
		"estimate my loan payments over 60 months",
		"how much is the total interest on a 5 year loan",
		"monthly cost for a 30k car with 5k down",
	},
	models.CategoryUserSpecific: {
		"show my watchlist",
		"what are my active bids",
		"list my saved searches",
		"did i win any auctions this week",
		"show my bidding history",
		"which vehicles am i watching",
	},
}

// categoryOrder fixes the scoring order so equal scores always break
// the same way.
var categoryOrder = []models.QueryCategory{
	models.CategoryGeneral,
	models.CategoryVehicleSearch,
	models.CategoryAuctionSearch,
	models.CategoryFinanceCalc,
	models.CategoryUserSpecific,
}

// definitionalTriggers route textbook questions toward GENERAL even
// when their vocabulary overlaps a search category.
var definitionalTriggers = []string{"what is", "explain", "define", "difference between"}

// definitionalBoost is added to the raw cosine score before
// normalization.
const definitionalBoost = 0.15

var (
	userIDRefPattern = regexp.MustCompile(`\buser(?:\s*id)?\s*[#=:]?\s*(\d+)`)
	emailPattern     = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	userNamePattern  = regexp.MustCompile(`\buser\s+([a-z]{2,})(?:'s)?\b`)
)

// QueryClassifier labels free-form questions and flags the ones that
// must never reach the SQL path.
type QueryClassifier struct {
	embeddings *ml.EmbeddingService
	logger     *logrus.Logger
}

func NewQueryClassifier(embeddings *ml.EmbeddingService, logger *logrus.Logger) *QueryClassifier {
	return &QueryClassifier{embeddings: embeddings, logger: logger}
}

// Classify returns the category for a question asked by the given
// authenticated user. The safety gate runs first and short-circuits to
// UNSAFE.
func (c *QueryClassifier) Classify(ctx context.Context, question string, user *models.AuthUser) models.QueryCategory {
	normalized := ml.NormalizeText(question)

	if c.isUnsafe(strings.ToLower(question), normalized, user) {
		c.logger.WithField("user_id", user.UserID).Warn("Question flagged unsafe")
		return models.CategoryUnsafe
	}

	queryVec := c.embeddings.QueryEmbedding(ctx, question)

	best := models.CategoryGeneral
	bestScore := -1.0
	for _, category := range categoryOrder {
		bank := c.embeddings.CategoryBank(ctx, string(category), categoryExamples[category])

		var maxSim float64
		for _, example := range bank {
			if s := ml.Cosine(queryVec, example); s > maxSim {
				maxSim = s
			}
		}

		// Boost on the raw cosine, then map into [0,1].
		if category == models.CategoryGeneral && hasDefinitionalTrigger(normalized) {
			maxSim += definitionalBoost
		}
		score := (maxSim + 1) / 2

		if score > bestScore {
			bestScore = score
			best = category
		}
	}

	c.logger.WithFields(logrus.Fields{
		"category": best,
		"score":    bestScore,
	}).Debug("Question classified")
	return best
}

func (c *QueryClassifier) isUnsafe(raw, normalized string, user *models.AuthUser) bool {
	tokens := strings.Fields(normalized)

	// Fuzzy match each token against the forbidden SQL verbs.
	for _, token := range tokens {
		for _, keyword := range forbiddenKeywords {
			if fuzzyRatio(token, keyword) >= 0.85 {
				return true
			}
		}
	}

	// Reserve prices are seller-confidential.
	for i := 0; i+1 < len(tokens); i++ {
		if fuzzyRatio(tokens[i]+" "+tokens[i+1], "reserve price") >= 0.85 {
			return true
		}
	}

	// "--" survives normalization only in the raw text.
	if strings.Contains(raw, "--") {
		return true
	}

	return referencesForeignUser(raw, normalized, user)
}

// referencesForeignUser detects probes at other users' ids, emails or
// names. References to the caller's own identity are allowed. Emails
// are matched against the raw text since normalization strips the
// @ and dots.
func referencesForeignUser(raw, normalized string, user *models.AuthUser) bool {
	for _, m := range userIDRefPattern.FindAllStringSubmatch(normalized, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if id != user.UserID {
			return true
		}
	}

	for _, email := range emailPattern.FindAllString(raw, -1) {
		if !strings.EqualFold(email, user.Email) {
			return true
		}
	}

	for _, m := range userNamePattern.FindAllStringSubmatch(normalized, -1) {
		name := m[1]
		if name == "id" {
			continue
		}
		if !strings.EqualFold(name, user.Name) {
			return true
		}
	}

	return false
}

func hasDefinitionalTrigger(normalized string) bool {
	for _, trigger := range definitionalTriggers {
		if strings.HasPrefix(normalized, trigger) {
			return true
		}
	}
	return false
}

// fuzzyRatio is a normalized Levenshtein similarity in [0,1].
func fuzzyRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	longest := la
	if lb > longest {
		longest = lb
	}
	return 1.0 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
