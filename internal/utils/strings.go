package utils

import "strings"

// SplitList splits a comma-separated setting and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// NormalizeSymbol upper-cases a ticker and strips surrounding whitespace
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
