// Package extract is the rule-based tier of the signal parser. It never
// fails: fields it cannot find stay empty and lower the confidence score.
package extract

import (
	"context"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/lexicon"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/normalize"
	"signal-trading-bot/internal/types"
)

// Engine extracts signal fields with keyword windows. A nil oracle accepts
// every symbol that survives the reject list.
type Engine struct {
	oracle interfaces.SymbolOracle
	norm   *normalize.Normalizer
	reject map[string]struct{}
}

type Option func(*Engine)

// WithNormalizer overrides the number normalizer (e.g. a different noise floor).
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(e *Engine) { e.norm = n }
}

// WithRejectWords adds words that must never be read as a symbol.
func WithRejectWords(words ...string) Option {
	return func(e *Engine) {
		for _, w := range words {
			e.reject[lexicon.Fold(w)] = struct{}{}
		}
	}
}

func New(oracle interfaces.SymbolOracle, opts ...Option) *Engine {
	e := &Engine{
		oracle: oracle,
		norm:   normalize.New(),
		reject: defaultRejectWords(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse implements interfaces.Parser.
func (e *Engine) Parse(ctx context.Context, text string) types.ParsedSignal {
	sig := e.Extract(text)
	logger.Debug(ctx, "Rule extraction finished",
		"symbol", sig.Symbol,
		"side", sig.Side,
		"confidence", sig.Confidence,
		"locale", sig.Locale,
	)
	return sig
}

// Extract runs every field extractor over text and scores the result.
func (e *Engine) Extract(text string) types.ParsedSignal {
	cleaned := lexicon.Clean(text)
	folded := lexicon.Fold(cleaned)

	sig := types.ParsedSignal{
		RawText:     text,
		Locale:      lexicon.DetectLocale(cleaned),
		Tier:        types.TierRulePath,
		Entries:     []float64{},
		TakeProfits: []float64{},
	}
	m := &message{
		folded:         folded,
		commaThousands: normalize.CommaThousands(folded),
		layout:         recognizeLayout(folded),
	}

	if m.layout.matched() {
		sig.Notef("labeled layout: %d fields", len(m.layout.windows))
		if e.layoutSignal(m, &sig) {
			sig.Confidence = sig.Score()
			return sig
		}
	}

	e.symbol(m, &sig)
	e.side(m, &sig)
	e.leverage(m, &sig)
	e.entries(m, &sig)
	e.takeProfits(m, &sig)
	e.stopLoss(m, &sig)
	sig.Confidence = sig.Score()
	return sig
}

// layoutSignal extracts from labeled windows only. It reports false, leaving
// sig untouched, when the layout does not name both symbol and side.
func (e *Engine) layoutSignal(m *message, sig *types.ParsedSignal) bool {
	symWin, okSym := m.layout.window(lexicon.FieldSymbol)
	sideWin, okSide := m.layout.window(lexicon.FieldSide)
	if !okSym || !okSide {
		return false
	}
	symbol, ok := e.symbolFromWindow(symWin, sig)
	if !ok {
		return false
	}
	side, ok := sideIn(sideWin)
	if !ok {
		return false
	}

	sig.Symbol = symbol
	sig.Side, sig.SideDetected = side, true
	sig.Notef("symbol: %s (label)", symbol)
	sig.Notef("side: %s (label)", side)

	m.windowsOnly = true
	e.leverage(m, sig)
	e.entries(m, sig)
	e.takeProfits(m, sig)
	e.stopLoss(m, sig)
	sig.Notef("layout short-circuit")
	return true
}

type message struct {
	folded         string
	commaThousands bool
	layout         layout

	// set once the layout supplied symbol and side; generic keyword search
	// is then skipped for every field
	windowsOnly bool
	sideEnd     int
}
