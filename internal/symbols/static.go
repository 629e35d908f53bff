// Package symbols provides the symbol-existence oracles consulted by the
// rule engine.
package symbols

import (
	"strings"

	"signal-trading-bot/internal/interfaces"
)

// Static is a fixed set of tradeable pairs.
type Static map[string]struct{}

var _ interfaces.SymbolOracle = Static(nil)

func NewStatic(symbols ...string) Static {
	s := make(Static, len(symbols))
	for _, sym := range symbols {
		s[strings.ToUpper(strings.TrimSpace(sym))] = struct{}{}
	}
	return s
}

func (s Static) Exists(symbol string) bool {
	_, ok := s[strings.ToUpper(symbol)]
	return ok
}

// AllowAll accepts every candidate; the rule engine's reject list is then
// the only filter.
type AllowAll struct{}

func (AllowAll) Exists(string) bool { return true }
