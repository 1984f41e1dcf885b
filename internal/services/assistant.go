package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/cache"
	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/internal/validation"
	"github.com/autofi/recommender/pkg/models"
)

const fallbackAnswer = "Sorry, I cannot assist with that."

// llmEnvelope is the structured payload the prompts require the model
// to emit. It is only decoded after schema validation passes.
type llmEnvelope struct {
	Answer           string      `json:"answer"`
	UIType           string      `json:"ui_type"`
	ChartType        *string     `json:"chart_type"`
	Data             interface{} `json:"data"`
	SuggestedActions []string    `json:"suggested_actions"`
	Sources          []string    `json:"sources"`
	SQL              *string     `json:"sql"`
}

// AssistantOrchestrator runs the full question pipeline: classify,
// prompt, complete, validate, execute generated SQL under guard, then
// render. Every failure degrades to a safe fallback response rather
// than an error.
type AssistantOrchestrator struct {
	classifier *QueryClassifier
	llm        *LLMClient
	sqlExec    *SafeSQLExecutor
	popular    *PopularQueryService
	validator  *validation.LLMResponseValidator
	users      *store.UserStore
	cache      *cache.Cache
	cfg        *config.Config
	logger     *logrus.Logger
}

func NewAssistantOrchestrator(
	classifier *QueryClassifier,
	llm *LLMClient,
	sqlExec *SafeSQLExecutor,
	popular *PopularQueryService,
	validator *validation.LLMResponseValidator,
	users *store.UserStore,
	c *cache.Cache,
	cfg *config.Config,
	logger *logrus.Logger,
) *AssistantOrchestrator {
	return &AssistantOrchestrator{
		classifier: classifier,
		llm:        llm,
		sqlExec:    sqlExec,
		popular:    popular,
		validator:  validator,
		users:      users,
		cache:      c,
		cfg:        cfg,
		logger:     logger,
	}
}

// Answer processes one question for the authenticated user. It never
// returns an error; anything that goes wrong produces the fallback
// response with the classified category preserved.
func (o *AssistantOrchestrator) Answer(ctx context.Context, req *models.EnrichedAIQuery, user *models.AuthUser) *models.AIResponse {
	category := o.classifier.Classify(ctx, req.Query.Question, user)

	if category == models.CategoryUnsafe {
		return o.fallback(category)
	}

	if !o.cfg.OpenAI.Enabled {
		o.logger.Debug("AI assistant disabled, serving fallback")
		return o.fallback(category)
	}

	// The recent-activity snapshot is best effort; the prompt still
	// works without it.
	mlCtx, err := o.MLContext(ctx, user.UserID)
	if err != nil {
		o.logger.WithError(err).Debug("ML context unavailable for prompt")
	}

	system, userPrompt := BuildPrompt(category, req, mlCtx, user)

	raw, err := o.llm.Complete(ctx, system, userPrompt)
	if err != nil {
		if errors.Is(err, ErrLLMAuth) {
			o.logger.WithError(err).Error("LLM credentials rejected")
		} else {
			o.logger.WithError(err).Warn("LLM completion failed")
		}
		return o.fallback(category)
	}

	if err := o.validator.Validate([]byte(raw)); err != nil {
		o.logger.WithError(err).Warn("LLM response failed envelope validation")
		return o.fallback(category)
	}

	var envelope llmEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		o.logger.WithError(err).Warn("LLM response failed to decode")
		return o.fallback(category)
	}

	resp := &models.AIResponse{
		Answer:           envelope.Answer,
		UIType:           models.UIType(envelope.UIType),
		QueryType:        category,
		Data:             envelope.Data,
		SuggestedActions: envelope.SuggestedActions,
		Sources:          envelope.Sources,
	}
	if envelope.ChartType != nil {
		resp.ChartType = *envelope.ChartType
	}

	if categoryNeedsSQL(category) && envelope.SQL != nil && *envelope.SQL != "" {
		rows, err := o.sqlExec.Run(ctx, *envelope.SQL, user)
		if err != nil {
			if errors.Is(err, models.ErrUnsafeQuery) {
				o.logger.WithError(err).WithField("user_id", user.UserID).Warn("Generated SQL rejected")
			} else {
				o.logger.WithError(err).Warn("Generated SQL execution failed")
			}
			return o.fallback(category)
		}
		resp.Data = rows
		resp.Answer = SummarizeRows(rows)
	}

	o.finalize(resp)

	// Only turns that produced a real answer count toward popularity.
	// The write runs detached and must never delay or fail the response.
	go o.savePopular(req.Query.Question)

	return resp
}

// MLContext serves the cached recent-activity snapshot for a user.
func (o *AssistantOrchestrator) MLContext(ctx context.Context, userID int) (*models.MLContext, error) {
	if mlCtx, hit := o.cache.GetMLContext(ctx, userID); hit {
		return mlCtx, nil
	}

	exists, err := o.users.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &models.UserNotFoundError{UserID: userID}
	}

	mlCtx, err := o.users.MLContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	o.cache.SetMLContext(ctx, userID, mlCtx)
	return mlCtx, nil
}

// finalize enforces the rendering invariants before the UI block is
// built: chart_type is set exactly when the chart renders, and the
// suggested-action list stays bounded.
func (o *AssistantOrchestrator) finalize(resp *models.AIResponse) {
	if resp.UIType == models.UITypeChart {
		if resp.ChartType == "" {
			resp.ChartType = "bar"
		}
	} else {
		resp.ChartType = ""
	}

	if max := o.cfg.Assistant.MaxSuggestedActions; max > 0 && len(resp.SuggestedActions) > max {
		resp.SuggestedActions = resp.SuggestedActions[:max]
	}

	resp.UIBlock = BuildUIBlock(resp)
}

func (o *AssistantOrchestrator) fallback(category models.QueryCategory) *models.AIResponse {
	resp := &models.AIResponse{
		Answer:    fallbackAnswer,
		UIType:    models.UITypeText,
		QueryType: category,
	}
	resp.UIBlock = BuildUIBlock(resp)
	return resp
}

// savePopular runs detached from the request so a slow or failing
// write never surfaces to the caller.
func (o *AssistantOrchestrator) savePopular(question string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.popular.Save(ctx, question); err != nil {
		o.logger.WithError(err).Warn("Failed to record popular query")
	}
}
