package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/autofi/recommender/pkg/models"
)

// envelopeContract is appended to every system prompt. It mirrors the
// JSON schema the validator enforces on the way back.
const envelopeContract = `Respond with a single JSON object and nothing else:
{
  "answer": "<markdown answer for the user>",
  "ui_type": "TEXT" | "TABLE" | "CARD_GRID" | "CALCULATOR" | "CHART",
  "chart_type": "bar" | "line" | "pie" | null,
  "data": <rows or key-value pairs backing the UI, or null>,
  "suggested_actions": [<up to 3 short follow-up questions>],
  "sources": [<table names you queried, if any>],
  "sql": "<one SELECT statement, or null>"
}
Set chart_type only when ui_type is CHART. Markdown in "answer" is limited to **bold**, *italic* and [links](https://...).`

// schemaContext describes the queryable tables for the SQL-generating
// categories. Only SELECT over these relations is permitted downstream.
const schemaContext = `Available tables (PostgreSQL, PascalCase identifiers):
  Vehicles(Id, Make, Model, Year, Price, Mileage, Color, FuelType, Transmission, Status, CreatedAt)
  Auctions(Id, VehicleId, StartingPrice, CurrentPrice, StartTime, EndTime, WinnerId, Status)
  Bids(Id, AuctionId, BidderId, Amount, CreatedAt)
  AutoBids(Id, AuctionId, UserId, MaxAmount, IsActive)
  Users(Id, Name, Email, CreatedAt)
  UserSavedSearches(Id, UserId, Title, SearchQuery, CreatedAt)
  UserInteractions(Id, UserId, VehicleId, InteractionType, CreatedAt)
  Watchlists(Id, UserId, VehicleId, CreatedAt)
  AuctionAnalytics(Id, AuctionId, EventType, EventData, CreatedAt)
Write one SELECT statement. Never modify data. Limit results to 10 rows.`

var categoryPrompts = map[models.QueryCategory]string{
	models.CategoryGeneral: `You are the help assistant for a vehicle auction marketplace.
Answer questions about how auctions, bidding, auto-bids, reserve prices and buying work.
Use ui_type TEXT and set sql to null. Do not invent marketplace data.`,

	models.CategoryVehicleSearch: `You are the vehicle search assistant for a vehicle auction marketplace.
Translate the user's question into SQL against the Vehicles table (join Auctions when price context needs it).
Prefer ui_type CARD_GRID for vehicle listings, TABLE for comparisons.`,

	models.CategoryAuctionSearch: `You are the auction search assistant for a vehicle auction marketplace.
Translate the user's question into SQL against the Auctions and Bids tables (join Vehicles for make and model).
Prefer ui_type TABLE; use CHART with an appropriate chart_type for trends and distributions.`,

	models.CategoryFinanceCalc: `You are the financing assistant for a vehicle auction marketplace.
Compute loan figures yourself from the numbers in the question: monthly payment, total interest, total cost.
Use ui_type CALCULATOR with the computed figures as key-value pairs in data. Set sql to null.`,

	models.CategoryUserSpecific: `You are the personal assistant for a vehicle auction marketplace user.
Translate the question into SQL over the user's own rows: bids, watchlist, saved searches, won auctions.
Prefer ui_type TABLE.`,
}

// BuildPrompt assembles the system and user prompts for one question.
// The caller-supplied client context and the recent-activity snapshot
// travel as labeled halves of one context object. USER_SPECIFIC
// prompts pin the SQL to the authenticated caller's id.
func BuildPrompt(category models.QueryCategory, req *models.EnrichedAIQuery, mlCtx *models.MLContext, user *models.AuthUser) (system string, userPrompt string) {
	var b strings.Builder
	b.WriteString(categoryPrompts[category])
	b.WriteString("\n\n")

	if categoryNeedsSQL(category) {
		b.WriteString(schemaContext)
		b.WriteString("\n\n")
	}
	if category == models.CategoryUserSpecific {
		fmt.Fprintf(&b, "The authenticated user has UserId = %d. Every query MUST filter with WHERE \"UserId\" = %d and must never reference another user.\n\n",
			user.UserID, user.UserID)
	}
	b.WriteString(envelopeContract)
	system = b.String()

	var u strings.Builder
	u.WriteString(req.Query.Question)

	combined := make(map[string]interface{}, 2)
	if len(req.Context) > 0 {
		combined["client_context"] = req.Context
	}
	if mlCtx != nil {
		combined["ml_context"] = mlCtx
	}
	if len(combined) > 0 {
		if blob, err := json.Marshal(combined); err == nil {
			u.WriteString("\n\nContext:\n")
			u.Write(blob)
		}
	}
	userPrompt = u.String()

	return system, userPrompt
}

// categoryNeedsSQL reports whether answers in this category read the
// database. GENERAL and FINANCE_CALC are answered entirely by the
// model.
func categoryNeedsSQL(category models.QueryCategory) bool {
	switch category {
	case models.CategoryVehicleSearch, models.CategoryAuctionSearch, models.CategoryUserSpecific:
		return true
	default:
		return false
	}
}
