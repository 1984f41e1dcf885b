package models

import "time"

// UIType tells the client how to render an assistant answer.
type UIType string

const (
	UITypeText       UIType = "TEXT"
	UITypeTable      UIType = "TABLE"
	UITypeCardGrid   UIType = "CARD_GRID"
	UITypeCalculator UIType = "CALCULATOR"
	UITypeChart      UIType = "CHART"
)

// QueryCategory is the closed set of classifier labels.
type QueryCategory string

const (
	CategoryGeneral       QueryCategory = "GENERAL"
	CategoryVehicleSearch QueryCategory = "VEHICLE_SEARCH"
	CategoryAuctionSearch QueryCategory = "AUCTION_SEARCH"
	CategoryFinanceCalc   QueryCategory = "FINANCE_CALC"
	CategoryUserSpecific  QueryCategory = "USER_SPECIFIC"
	CategoryUnsafe        QueryCategory = "UNSAFE"
)

type AIQueryRequest struct {
	UserID   int    `json:"user_id" binding:"required,min=1"`
	Question string `json:"question" binding:"required"`
}

// EnrichedAIQuery is the request body of POST /api/ai/query: the user
// question plus the caller-supplied context blob forwarded verbatim
// into the prompt.
type EnrichedAIQuery struct {
	Query   AIQueryRequest         `json:"query" binding:"required"`
	Context map[string]interface{} `json:"context"`
}

// AIResponse is the assistant's structured answer. ChartType is set
// exactly when UIType is CHART.
type AIResponse struct {
	Answer           string        `json:"answer"`
	UIType           UIType        `json:"ui_type"`
	ChartType        string        `json:"chart_type,omitempty"`
	QueryType        QueryCategory `json:"query_type"`
	Data             interface{}   `json:"data"`
	SuggestedActions []string      `json:"suggested_actions"`
	Sources          []string      `json:"sources"`
	UIBlock          string        `json:"ui_block,omitempty"`
}

// FeedbackVote is the tri-state per-message vote.
type FeedbackVote string

const (
	VoteNotVoted  FeedbackVote = "NOTVOTED"
	VoteUpvoted   FeedbackVote = "UPVOTED"
	VoteDownvoted FeedbackVote = "DOWNVOTED"
)

type FeedbackRequest struct {
	MessageID int          `json:"message_id" binding:"required,min=1"`
	Vote      FeedbackVote `json:"vote" binding:"required,oneof=UPVOTED DOWNVOTED"`
}

type PopularQuery struct {
	Text      string     `json:"text"`
	Count     int        `json:"count"`
	LastAsked *time.Time `json:"last_asked"`
}

// MLContext is the snapshot served by GET /api/ai/context/{user_id}.
type MLContext struct {
	UserInteractions []map[string]interface{} `json:"user_interactions"`
	AnalyticsEvents  []map[string]interface{} `json:"analytics_events"`
}
