package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofi/recommender/internal/config"
)

func streamBody(tokens ...string) string {
	var body string
	for _, token := range tokens {
		body += fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", token)
	}
	return body + "data: [DONE]\n\n"
}

func testLLMClient(baseURL string) *LLMClient {
	cfg := config.OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		Model:          "gpt-4o-mini",
		MaxTokens:      100,
		Temperature:    0.2,
		Timeout:        5 * time.Second,
		MaxConcurrency: 2,
	}
	return NewLLMClient(cfg, testLogger())
}

func TestCompleteConcatenatesStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, streamBody(`{"answer":`, `"hi"}`))
	}))
	defer server.Close()

	answer, err := testLLMClient(server.URL).Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"hi"}`, answer)
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, streamBody("ok"))
	}))
	defer server.Close()

	answer, err := testLLMClient(server.URL).Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testLLMClient(server.URL).Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Equal(t, int32(llmMaxAttempts), atomic.LoadInt32(&calls))
}

func TestCompleteAuthFailureDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testLLMClient(server.URL).Complete(context.Background(), "system", "user")
	assert.ErrorIs(t, err, ErrLLMAuth)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCompleteHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testLLMClient(server.URL).Complete(ctx, "system", "user")
	assert.Error(t, err)
}
