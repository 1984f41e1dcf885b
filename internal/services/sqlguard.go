package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/pkg/models"
)

// allowedTables is the closed set of relations LLM-generated SQL may
// read, keyed by lowercase name with the exact stored casing as value.
var allowedTables = map[string]string{
	"vehicles":          "Vehicles",
	"auctions":          "Auctions",
	"bids":              "Bids",
	"autobids":          "AutoBids",
	"bidstrategies":     "BidStrategies",
	"users":             "Users",
	"usersavedsearches": "UserSavedSearches",
	"userinteractions":  "UserInteractions",
	"watchlists":        "Watchlists",
	"auctionanalytics":  "AuctionAnalytics",
	"analyticsevents":   "AnalyticsEvents",
	"vehiclefeatures":   "VehicleFeatures",
}

// allowedColumns maps lowercase column names onto the stored casing.
var allowedColumns = map[string]string{
	"id": "Id", "userid": "UserId", "vehicleid": "VehicleId",
	"auctionid": "AuctionId", "bidderid": "BidderId", "winnerid": "WinnerId",
	"make": "Make", "model": "Model", "year": "Year", "price": "Price",
	"mileage": "Mileage", "color": "Color", "fueltype": "FuelType",
	"transmission": "Transmission", "status": "Status",
	"amount": "Amount", "maxamount": "MaxAmount",
	"startingprice": "StartingPrice", "currentprice": "CurrentPrice",
	"starttime": "StartTime", "endtime": "EndTime",
	"createdat": "CreatedAt", "updatedat": "UpdatedAt",
	"name": "Name", "email": "Email",
	"interactiontype": "InteractionType",
	"eventtype":       "EventType", "eventdata": "EventData",
	"title": "Title", "description": "Description", "isactive": "IsActive",
	"searchquery": "SearchQuery", "horsepower": "Horsepower",
}

// sqlKeywords are tokens the quoter must leave bare.
var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "join": true, "inner": true,
	"left": true, "right": true, "outer": true, "full": true, "cross": true,
	"on": true, "and": true, "or": true, "not": true, "null": true,
	"as": true, "order": true, "group": true, "by": true, "limit": true,
	"offset": true, "asc": true, "desc": true, "distinct": true,
	"count": true, "avg": true, "sum": true, "min": true, "max": true,
	"like": true, "ilike": true, "in": true, "between": true, "is": true,
	"having": true, "case": true, "when": true, "then": true, "else": true,
	"end": true, "true": true, "false": true, "now": true, "interval": true,
	"extract": true, "coalesce": true, "cast": true, "round": true,
}

var (
	tableRefPattern  = regexp.MustCompile(`(?i)\b(?:from|join)\s+"?([A-Za-z_][A-Za-z0-9_]*)"?`)
	userIDLiteral    = regexp.MustCompile(`(?i)"?UserId"?\s*=\s*(\d+)`)
	usersIDLiteral   = regexp.MustCompile(`(?i)"?Users"?\."?Id"?\s*=\s*(\d+)`)
	userNameLiteral  = regexp.MustCompile(`(?i)"?Users"?\."?Name"?\s*=\s*'([^']*)'`)
	userEmailLiteral = regexp.MustCompile(`(?i)"?Users"?\."?Email"?\s*=\s*'([^']*)'`)
	identifierToken  = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
	execToken        = regexp.MustCompile(`\bexec\b`)
)

// defaultRowCap bounds result sets when no cap is configured.
const defaultRowCap = 10

// SafeSQLExecutor validates, rewrites and executes LLM-generated
// SELECT queries. Any validation failure returns an error wrapping
// ErrUnsafeQuery without touching the database.
type SafeSQLExecutor struct {
	db      store.Querier
	maxRows int
	logger  *logrus.Logger
}

func NewSafeSQLExecutor(db store.Querier, maxRows int, logger *logrus.Logger) *SafeSQLExecutor {
	if maxRows <= 0 {
		maxRows = defaultRowCap
	}
	return &SafeSQLExecutor{db: db, maxRows: maxRows, logger: logger}
}

// Run executes one generated query under the caller's identity and
// returns at most maxRows row maps regardless of any LIMIT the query
// carries.
func (e *SafeSQLExecutor) Run(ctx context.Context, sql string, user *models.AuthUser) ([]map[string]interface{}, error) {
	sanitized, err := e.Sanitize(sql, user)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", user.UserID).Warn("Rejected generated SQL")
		return nil, err
	}

	rows, err := e.db.Query(ctx, sanitized)
	if err != nil {
		return nil, fmt.Errorf("generated query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]interface{}, 0, e.maxRows)
	for rows.Next() {
		if len(out) == e.maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fields))
		for i, field := range fields {
			row[string(field.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Sanitize runs the full validation pipeline and returns the rewritten
// query text.
func (e *SafeSQLExecutor) Sanitize(sql string, user *models.AuthUser) (string, error) {
	// LLMs emit literal "\n" artifacts inside JSON strings.
	sql = strings.ReplaceAll(sql, `\n`, " ")
	sql = strings.TrimSpace(whitespaceRun.ReplaceAllString(sql, " "))
	if sql == "" {
		return "", fmt.Errorf("%w: empty query", models.ErrUnsafeQuery)
	}

	lower := strings.ToLower(sql)

	if !strings.HasPrefix(lower, "select") {
		return "", fmt.Errorf("%w: only SELECT statements are allowed", models.ErrUnsafeQuery)
	}

	if i := strings.Index(sql, ";"); i >= 0 && i != len(sql)-1 {
		return "", fmt.Errorf("%w: embedded statement separator", models.ErrUnsafeQuery)
	}
	sql = strings.TrimSuffix(sql, ";")
	lower = strings.TrimSuffix(lower, ";")

	for _, keyword := range forbiddenKeywords {
		if keyword == "exec" {
			// "exec" alone would also match harmless identifiers like
			// ExecutedAt; the verb always appears as its own token.
			if execToken.MatchString(lower) {
				return "", fmt.Errorf("%w: forbidden keyword %q", models.ErrUnsafeQuery, keyword)
			}
			continue
		}
		if strings.Contains(lower, keyword) {
			return "", fmt.Errorf("%w: forbidden keyword %q", models.ErrUnsafeQuery, keyword)
		}
	}

	for _, m := range tableRefPattern.FindAllStringSubmatch(sql, -1) {
		if _, ok := allowedTables[strings.ToLower(m[1])]; !ok {
			return "", fmt.Errorf("%w: table %q is not allowed", models.ErrUnsafeQuery, m[1])
		}
	}

	if err := checkUserScope(sql, user); err != nil {
		return "", err
	}

	sql = quoteIdentifiers(sql)

	if !strings.Contains(lower, "limit") && !strings.Contains(lower, "count(") {
		sql += fmt.Sprintf(" LIMIT %d", e.maxRows)
	}

	return sql, nil
}

// checkUserScope requires every user-identifying literal to match the
// authenticated caller.
func checkUserScope(sql string, user *models.AuthUser) error {
	for _, pattern := range []*regexp.Regexp{userIDLiteral, usersIDLiteral} {
		for _, m := range pattern.FindAllStringSubmatch(sql, -1) {
			id, err := strconv.Atoi(m[1])
			if err != nil || id != user.UserID {
				return fmt.Errorf("%w: query scoped to another user", models.ErrUnsafeQuery)
			}
		}
	}

	for _, m := range userNameLiteral.FindAllStringSubmatch(sql, -1) {
		if !strings.EqualFold(m[1], user.Name) {
			return fmt.Errorf("%w: query scoped to another user", models.ErrUnsafeQuery)
		}
	}

	for _, m := range userEmailLiteral.FindAllStringSubmatch(sql, -1) {
		if !strings.EqualFold(m[1], user.Email) {
			return fmt.Errorf("%w: query scoped to another user", models.ErrUnsafeQuery)
		}
	}

	return nil
}

// quoteIdentifiers wraps bare table and column names in double quotes
// with the exact stored casing. String literals and already-quoted
// identifiers pass through untouched.
func quoteIdentifiers(sql string) string {
	var b strings.Builder
	b.Grow(len(sql) + 32)

	for i := 0; i < len(sql); {
		switch sql[i] {
		case '\'':
			end := strings.IndexByte(sql[i+1:], '\'')
			if end < 0 {
				b.WriteString(sql[i:])
				return b.String()
			}
			b.WriteString(sql[i : i+end+2])
			i += end + 2
		case '"':
			end := strings.IndexByte(sql[i+1:], '"')
			if end < 0 {
				b.WriteString(sql[i:])
				return b.String()
			}
			b.WriteString(sql[i : i+end+2])
			i += end + 2
		default:
			loc := identifierToken.FindStringIndex(sql[i:])
			if loc == nil {
				b.WriteString(sql[i:])
				return b.String()
			}
			b.WriteString(sql[i : i+loc[0]])
			token := sql[i+loc[0] : i+loc[1]]
			b.WriteString(canonicalIdentifier(token))
			i += loc[1]
		}
	}

	return b.String()
}

func canonicalIdentifier(token string) string {
	lower := strings.ToLower(token)
	if sqlKeywords[lower] {
		return token
	}
	if canonical, ok := allowedTables[lower]; ok {
		return `"` + canonical + `"`
	}
	if canonical, ok := allowedColumns[lower]; ok {
		return `"` + canonical + `"`
	}
	return token
}
