package services

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/autofi/recommender/pkg/models"
)

var (
	boldPattern   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern = regexp.MustCompile(`\*([^*]+)\*`)
	linkPattern   = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)

	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	titleCaser    = cases.Title(language.English)
)

// BuildUIBlock renders the server-side HTML fragment for a response.
// Every data-derived insertion is HTML-escaped.
func BuildUIBlock(resp *models.AIResponse) string {
	switch resp.UIType {
	case models.UITypeTable:
		return buildTable(rowsFromData(resp.Data))
	case models.UITypeCardGrid:
		return buildCardGrid(rowsFromData(resp.Data))
	case models.UITypeCalculator:
		return buildCalculator(resp.Data)
	case models.UITypeChart:
		return buildChart(resp)
	default:
		return "<p>" + renderInlineMarkdown(resp.Answer) + "</p>"
	}
}

// renderInlineMarkdown escapes the text, then converts the small
// markdown subset the prompts allow: **bold**, *italic*, [text](url).
func renderInlineMarkdown(text string) string {
	escaped := html.EscapeString(text)
	escaped = linkPattern.ReplaceAllString(escaped, `<a href="$2" rel="noopener noreferrer">$1</a>`)
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	escaped = italicPattern.ReplaceAllString(escaped, "<em>$1</em>")
	return escaped
}

func buildTable(rows []map[string]interface{}) string {
	if len(rows) == 0 {
		return "<p>No results found.</p>"
	}

	headers := sortedKeys(rows[0])

	var b strings.Builder
	b.WriteString("<table><thead><tr>")
	for _, h := range headers {
		b.WriteString("<th>" + html.EscapeString(prettifyKey(h)) + "</th>")
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, h := range headers {
			b.WriteString("<td>" + html.EscapeString(formatValue(h, row[h])) + "</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

func buildCardGrid(rows []map[string]interface{}) string {
	if len(rows) == 0 {
		return "<p>No results found.</p>"
	}

	var b strings.Builder
	b.WriteString(`<div class="card-grid">`)
	for _, row := range rows {
		b.WriteString(`<div class="card">`)
		for _, key := range sortedKeys(row) {
			b.WriteString(`<div class="card-field"><span class="label">` +
				html.EscapeString(prettifyKey(key)) + `</span><span class="value">` +
				html.EscapeString(formatValue(key, row[key])) + `</span></div>`)
		}
		b.WriteString("</div>")
	}
	b.WriteString("</div>")
	return b.String()
}

func buildCalculator(data interface{}) string {
	pairs, ok := data.(map[string]interface{})
	if !ok {
		rows := rowsFromData(data)
		if len(rows) == 0 {
			return "<p>No results found.</p>"
		}
		pairs = rows[0]
	}

	var b strings.Builder
	b.WriteString(`<div class="card calculator">`)
	for _, key := range sortedKeys(pairs) {
		b.WriteString(`<div class="calc-row"><span class="label">` +
			html.EscapeString(prettifyKey(key)) + `</span><span class="value">` +
			html.EscapeString(formatValue(key, pairs[key])) + `</span></div>`)
	}
	b.WriteString("</div>")
	return b.String()
}

func buildChart(resp *models.AIResponse) string {
	chartType := resp.ChartType
	if chartType == "" {
		chartType = "bar"
	}

	payload, err := json.Marshal(resp.Data)
	if err != nil {
		payload = []byte("[]")
	}

	return fmt.Sprintf(`<div class="chart" data-chart-type="%s" data-chart="%s"></div>`,
		html.EscapeString(chartType), html.EscapeString(string(payload)))
}

// rowsFromData coerces the payload into row maps; JSON decoding and
// pgx both produce these shapes.
func rowsFromData(data interface{}) []map[string]interface{} {
	switch v := data.(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if row, ok := item.(map[string]interface{}); ok {
				rows = append(rows, row)
			}
		}
		return rows
	case map[string]interface{}:
		return []map[string]interface{}{v}
	default:
		return nil
	}
}

func sortedKeys(row map[string]interface{}) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// prettifyKey turns snake_case or PascalCase column names into label
// text.
func prettifyKey(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	key = camelBoundary.ReplaceAllString(key, "$1 $2")
	return titleCaser.String(strings.ToLower(key))
}

// formatValue renders a cell. Monetary columns get a currency prefix.
func formatValue(key string, value interface{}) string {
	if value == nil {
		return "-"
	}

	monetary := func() bool {
		lower := strings.ToLower(key)
		for _, hint := range []string{"price", "amount", "cost", "payment"} {
			if strings.Contains(lower, hint) {
				return true
			}
		}
		return false
	}

	switch v := value.(type) {
	case float64:
		if monetary() {
			return "$" + strconv.FormatFloat(v, 'f', 2, 64)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return formatValue(key, float64(v))
	case int, int32, int64:
		if monetary() {
			return fmt.Sprintf("$%d.00", v)
		}
		return fmt.Sprintf("%d", v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
