package services

import (
	"fmt"
	"strings"
)

// SummarizeRows produces a deterministic natural-language answer from
// query results, avoiding a second LLM round trip. Single rows read as
// sentences, multi-row results defer to the rendered UI block.
func SummarizeRows(rows []map[string]interface{}) string {
	switch {
	case len(rows) == 0:
		return "I could not find any matching results."
	case len(rows) == 1:
		return summarizeSingleRow(rows[0])
	default:
		return fmt.Sprintf("Sure, here are %d results matching your request.", len(rows))
	}
}

func summarizeSingleRow(row map[string]interface{}) string {
	parts := make([]string, 0, len(row))
	for _, key := range sortedKeys(row) {
		parts = append(parts, fmt.Sprintf("The %s is %s",
			strings.ToLower(prettifyKey(key)), formatValue(key, row[key])))
	}
	return strings.Join(parts, " and ") + "."
}
