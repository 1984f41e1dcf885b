package ml

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/autofi/recommender/internal/cache"
)

// EmbeddingService produces deterministic bag-of-tokens embeddings.
// Two phrasings of the same question share most tokens, so their
// cosine similarity stays high while unrelated questions land near
// zero. Determinism matters: the classifier thresholds and the
// popular-query dedupe threshold are tuned against this embedder.
type EmbeddingService struct {
	cache  *cache.Cache
	dims   int
	logger *logrus.Logger
}

func NewEmbeddingService(c *cache.Cache, dims int, logger *logrus.Logger) *EmbeddingService {
	if dims <= 0 {
		dims = 256
	}
	return &EmbeddingService{
		cache:  c,
		dims:   dims,
		logger: logger,
	}
}

// NormalizeText lowercases, strips punctuation and collapses
// whitespace so trivially different phrasings share a cache key.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// Embed maps normalized text onto a fixed-dimension unit vector by
// hashing each token into a bucket. No caching; callers that want the
// Redis-backed path use QueryEmbedding or CategoryEmbedding.
func (s *EmbeddingService) Embed(text string) []float64 {
	vec := make([]float64, s.dims)

	normalized := NormalizeText(text)
	if normalized == "" {
		return vec
	}

	for _, token := range strings.Fields(normalized) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(s.dims))
		// Second hash bit picks the sign so collisions cancel instead
		// of piling up.
		if (sum>>32)&1 == 0 {
			vec[idx] += 1.0
		} else {
			vec[idx] -= 1.0
		}
	}

	norm := floats.Norm(vec, 2)
	if norm > 0 {
		floats.Scale(1.0/norm, vec)
	}

	return vec
}

// QueryEmbedding returns the embedding for a user question, cached
// under the normalized text for an hour.
func (s *EmbeddingService) QueryEmbedding(ctx context.Context, text string) []float64 {
	normalized := NormalizeText(text)

	if vec, hit := s.cache.GetQueryEmbedding(ctx, normalized); hit && len(vec) == s.dims {
		return vec
	}

	vec := s.Embed(normalized)
	s.cache.SetQueryEmbedding(ctx, normalized, vec)
	return vec
}

// CategoryBank returns one embedding per example question of a
// category, cached for a day since the banks are static.
func (s *EmbeddingService) CategoryBank(ctx context.Context, category string, examples []string) [][]float64 {
	if bank, hit := s.cache.GetCategoryBank(ctx, category); hit && len(bank) == len(examples) {
		return bank
	}

	bank := make([][]float64, len(examples))
	for i, example := range examples {
		bank[i] = s.Embed(example)
	}

	s.cache.SetCategoryBank(ctx, category, bank)
	return bank
}

// Cosine returns the cosine similarity of two vectors, zero when
// either is degenerate.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	dot := floats.Dot(a, b)
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (na * nb)
}
