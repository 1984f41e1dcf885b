package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/autofi/recommender/internal/config"
)

// ErrLLMAuth is the sentinel for credential failures; retrying cannot
// help, so callers bail out immediately.
var ErrLLMAuth = errors.New("llm authentication failed")

const llmMaxAttempts = 3

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	Stream         bool          `json:"stream"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// LLMClient wraps the chat-completion endpoint with bounded
// concurrency, retries and metrics. Responses stream token by token
// and are concatenated before returning.
type LLMClient struct {
	httpClient *http.Client
	cfg        config.OpenAIConfig
	sem        *semaphore.Weighted
	logger     *logrus.Logger

	latency  prometheus.Histogram
	requests *prometheus.CounterVec
}

func NewLLMClient(cfg config.OpenAIConfig, logger *logrus.Logger) *LLMClient {
	permits := int64(cfg.MaxConcurrency)
	if permits <= 0 {
		permits = 5
	}

	c := &LLMClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		sem:        semaphore.NewWeighted(permits),
		logger:     logger,
	}

	c.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "llm_request_duration_seconds",
		Help:    "Latency of LLM completion calls",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
	c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "LLM completion calls by outcome",
	}, []string{"outcome"})

	if err := prometheus.Register(c.latency); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			logger.WithError(err).Warn("Failed to register llm_request_duration_seconds metric")
		}
	}
	if err := prometheus.Register(c.requests); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			c.requests = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			logger.WithError(err).Warn("Failed to register llm_requests_total metric")
		}
	}

	return c
}

// Complete sends one system+user exchange in JSON mode and returns the
// concatenated streamed answer. Transport failures retry with
// exponential backoff; auth failures terminate immediately.
func (c *LLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	start := time.Now()

	var lastErr error
	delay := 500*time.Millisecond + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
	for attempt := 1; attempt <= llmMaxAttempts; attempt++ {
		answer, err := c.doRequest(ctx, systemPrompt, userPrompt)
		if err == nil {
			c.latency.Observe(time.Since(start).Seconds())
			c.requests.WithLabelValues("success").Inc()
			return answer, nil
		}
		if errors.Is(err, ErrLLMAuth) {
			c.requests.WithLabelValues("auth_error").Inc()
			return "", err
		}
		if ctx.Err() != nil {
			c.requests.WithLabelValues("failure").Inc()
			return "", ctx.Err()
		}

		lastErr = err
		c.logger.WithError(err).WithField("attempt", attempt).Warn("LLM call failed")

		if attempt < llmMaxAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.requests.WithLabelValues("failure").Inc()
				return "", ctx.Err()
			}
			delay *= 2
			if delay > 2*time.Second {
				delay = 2 * time.Second
			}
		}
	}

	c.latency.Observe(time.Since(start).Seconds())
	c.requests.WithLabelValues("failure").Inc()
	return "", fmt.Errorf("llm call failed after %d attempts: %w", llmMaxAttempts, lastErr)
}

func (c *LLMClient) doRequest(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:      c.cfg.MaxTokens,
		Temperature:    c.cfg.Temperature,
		Stream:         true,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrLLMAuth
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("llm endpoint returned status %d", resp.StatusCode)
	}

	return readStream(resp)
}

// readStream concatenates the delta tokens of an SSE completion
// stream.
func readStream(resp *http.Response) (string, error) {
	var answer strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("malformed stream chunk: %w", err)
		}
		if len(chunk.Choices) > 0 {
			answer.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	return answer.String(), nil
}
