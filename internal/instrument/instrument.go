// Package instrument handles stock symbol validation, case normalization,
// and the tradable-instrument catalog used for search.
package instrument

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches exchange-style tickers: 1-10 characters, starting with
// a letter, with dots allowed for share classes (e.g. BRK.B).
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// ErrInvalidSymbol is returned when a symbol does not look like a ticker.
var ErrInvalidSymbol = errors.New("instrument: invalid symbol")

// NormalizeSymbol upper-cases and validates a ticker symbol.
// Holdings are keyed by the normalized form so "aapl" and "AAPL" are the
// same position.
func NormalizeSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolRegex.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return sym, nil
}

// MatchesQuery reports whether an instrument's symbol or name contains the
// query, case-insensitively. Used by catalog search.
func MatchesQuery(symbol, name, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(symbol), q) ||
		strings.Contains(strings.ToLower(name), q)
}
