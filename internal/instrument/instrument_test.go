package instrument

import (
	"errors"
	"testing"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"AAPL", "AAPL"},
		{"aapl", "AAPL"},
		{" msft ", "MSFT"},
		{"brk.b", "BRK.B"},
		{"A", "A"},
	}
	for _, tc := range cases {
		got, err := NormalizeSymbol(tc.in)
		if err != nil {
			t.Errorf("NormalizeSymbol(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeSymbol_Invalid(t *testing.T) {
	for _, in := range []string{"", "  ", "9AAPL", ".AAPL", "TOOLONGSYMBOL", "AA PL", "aa-pl"} {
		_, err := NormalizeSymbol(in)
		if !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("NormalizeSymbol(%q): expected ErrInvalidSymbol, got %v", in, err)
		}
	}
}

func TestMatchesQuery(t *testing.T) {
	cases := []struct {
		symbol, name, query string
		want                bool
	}{
		{"AAPL", "Apple Inc.", "app", true},
		{"AAPL", "Apple Inc.", "AAPL", true},
		{"AAPL", "Apple Inc.", "inc", true},
		{"MSFT", "Microsoft Corporation", "soft", true},
		{"MSFT", "Microsoft Corporation", "apple", false},
	}
	for _, tc := range cases {
		if got := MatchesQuery(tc.symbol, tc.name, tc.query); got != tc.want {
			t.Errorf("MatchesQuery(%q, %q, %q) = %v, want %v", tc.symbol, tc.name, tc.query, got, tc.want)
		}
	}
}
