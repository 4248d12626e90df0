package domain

import (
	"regexp"
	"strings"
)

var symbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// NormalizeSymbol canonicalizes a ticker symbol: matching is case-insensitive,
// so input is upper-cased and trimmed before validation. Returns
// ErrInvalidSymbol for anything that doesn't look like a ticker.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolRegex.MatchString(sym) {
		return "", ErrInvalidSymbol
	}
	return sym, nil
}
