// Package symbol maps exchange tickers and stored position symbols onto the
// platform's canonical BASE-QUOTE form. Every component that keys a map by
// symbol goes through the same Table so lookups match regardless of how a
// symbol was originally spelled.
package symbol

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

// contractSuffixes mark perpetual or settlement variants of a spot pair.
var contractSuffixes = []string{":USDT", ":USDC", ":USD", ".P", "-PERP", "_PERP", "-SWAP"}

// quoteAliases are quote currencies that settle against the platform's quote.
var quoteAliases = map[string][]string{
	"USD": {"USD", "USDT", "USDC"},
}

// Table is an immutable lookup from raw ticker spellings to canonical
// symbols. It is safe for concurrent use.
type Table struct {
	canonical []string
	lookup    map[string]string
}

// NewTable builds a Table for the given canonical symbols. Each symbol must be
// of the form BASE-QUOTE. extra maps additional raw spellings (for example
// "XBTUSD") to one of the canonical symbols.
func NewTable(symbols []string, extra map[string]string) (*Table, error) {
	t := &Table{lookup: make(map[string]string)}
	seen := make(map[string]bool, len(symbols))

	for _, s := range symbols {
		canon := strings.ToUpper(strings.TrimSpace(s))
		base, quote, ok := strings.Cut(canon, "-")
		if !ok || base == "" || quote == "" {
			return nil, fmt.Errorf("symbol: %q is not BASE-QUOTE", s)
		}
		if seen[canon] {
			continue
		}
		seen[canon] = true
		t.canonical = append(t.canonical, canon)

		quotes := quoteAliases[quote]
		if len(quotes) == 0 {
			quotes = []string{quote}
		}
		for _, q := range quotes {
			for _, sep := range []string{"-", "", "/", "_"} {
				t.lookup[base+sep+q] = canon
			}
		}
		t.lookup[base] = canon
	}

	for raw, canon := range extra {
		c := strings.ToUpper(strings.TrimSpace(canon))
		if !seen[c] {
			return nil, fmt.Errorf("symbol: alias %q targets unknown symbol %q", raw, canon)
		}
		t.lookup[clean(raw)] = c
	}

	sort.Strings(t.canonical)
	return t, nil
}

// Symbols returns the canonical symbols in sorted order.
func (t *Table) Symbols() []string {
	out := make([]string, len(t.canonical))
	copy(out, t.canonical)
	return out
}

// Lookup resolves raw to its canonical symbol.
func (t *Table) Lookup(raw string) (string, bool) {
	canon, ok := t.lookup[clean(raw)]
	return canon, ok
}

// Normalize resolves raw to its canonical symbol, or returns the cleaned raw
// value when the table does not know it. Unknown symbols still key-match
// against each other but never against a tracked symbol.
func (t *Table) Normalize(raw string) string {
	if canon, ok := t.Lookup(raw); ok {
		return canon
	}
	return clean(raw)
}

// Validate checks that every subscription channel resolves to a canonical
// symbol and that every canonical symbol is subscribed.
func (t *Table) Validate(channels []string) error {
	covered := make(map[string]bool, len(t.canonical))
	var errs []string
	for _, ch := range channels {
		canon, ok := t.Lookup(ch)
		if !ok {
			errs = append(errs, fmt.Sprintf("channel %q: %v", ch, domain.ErrUnknownSymbol))
			continue
		}
		covered[canon] = true
	}
	for _, c := range t.canonical {
		if !covered[c] {
			errs = append(errs, fmt.Sprintf("symbol %q has no subscription", c))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("symbol: validate subscriptions: %s", strings.Join(errs, "; "))
	}
	return nil
}

// clean upper-cases raw and strips its contract suffix and venue prefix.
func clean(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, suffix := range contractSuffixes {
		if trimmed, ok := strings.CutSuffix(s, suffix); ok && trimmed != "" {
			s = trimmed
			break
		}
	}
	return stripVenue(s)
}

// stripVenue removes an exchange or channel prefix such as "XT." or
// "BINANCE:".
func stripVenue(raw string) string {
	if i := strings.IndexAny(raw, ".:"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}
