// Package orchestrator routes a message through the parsing tiers: the
// whitelist fast path, the rule engine, the AI fallback, and finally the
// low-confidence rule result.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"signal-trading-bot/internal/extract"
	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/lexicon"
	"signal-trading-bot/internal/llm"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/trace"
	"signal-trading-bot/internal/types"
	"signal-trading-bot/internal/whitelist"
)

type Config struct {
	RuleThreshold  float64       // rule results at or above this are final
	ProbationFloor float64       // AI results at or above this are learned
	AITimeout      time.Duration // bound on the whole AI tier
}

func DefaultConfig() Config {
	return Config{RuleThreshold: 0.75, ProbationFloor: 0.6, AITimeout: 30 * time.Second}
}

// Recorder receives routing outcomes, e.g. the metrics package.
type Recorder interface {
	ObserveTier(tier types.Tier, confidence float64)
	ObserveCache(hit bool)
}

type Orchestrator struct {
	cfg    Config
	rules  interfaces.Parser
	cache  *whitelist.Cache
	ai     interfaces.AIExtractor
	oracle interfaces.SymbolOracle
	rec    Recorder
}

var _ interfaces.Parser = (*Orchestrator)(nil)

type Option func(*Orchestrator)

// WithCache enables the fast path and learning.
func WithCache(c *whitelist.Cache) Option { return func(o *Orchestrator) { o.cache = c } }

// WithAI enables the AI tier.
func WithAI(ai interfaces.AIExtractor) Option { return func(o *Orchestrator) { o.ai = ai } }

// WithOracle rejects AI answers naming unlisted symbols.
func WithOracle(oracle interfaces.SymbolOracle) Option {
	return func(o *Orchestrator) { o.oracle = oracle }
}

func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.rec = r } }

func New(cfg Config, rules interfaces.Parser, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.RuleThreshold <= 0 {
		cfg.RuleThreshold = def.RuleThreshold
	}
	if cfg.ProbationFloor <= 0 {
		cfg.ProbationFloor = def.ProbationFloor
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = def.AITimeout
	}
	o := &Orchestrator{cfg: cfg, rules: rules}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Parse always produces a signal. Its notes name the tier that produced it.
func (o *Orchestrator) Parse(ctx context.Context, text string) types.ParsedSignal {
	ctx, span := trace.StartSpan(ctx, "orchestrator.Parse")
	defer span.End()

	if sig, ok := o.fastPath(ctx, text); ok {
		return o.done(ctx, sig)
	}

	sig := o.rules.Parse(ctx, text)
	if sig.Confidence >= o.cfg.RuleThreshold {
		sig.Notef("tier %s: rule confidence %.2f >= %.2f", types.TierRulePath, sig.Confidence, o.cfg.RuleThreshold)
		o.learn(ctx, text, sig)
		return o.done(ctx, sig)
	}

	if o.ai == nil {
		return o.fallback(ctx, sig, "no AI fallback configured")
	}
	aiSig, why := o.aiPath(ctx, text)
	if why != "" {
		return o.fallback(ctx, sig, why)
	}
	aiSig.Notef("tier %s: rule confidence %.2f < %.2f, AI accepted", types.TierAIPath, sig.Confidence, o.cfg.RuleThreshold)
	if aiSig.Confidence >= o.cfg.ProbationFloor {
		o.learn(ctx, text, aiSig)
	}
	return o.done(ctx, aiSig)
}

func (o *Orchestrator) fastPath(ctx context.Context, text string) (types.ParsedSignal, bool) {
	if o.cache == nil {
		return types.ParsedSignal{}, false
	}
	entry, ok := o.cache.Lookup(text)
	o.observeCache(ok)
	if !ok {
		return types.ParsedSignal{}, false
	}

	sig := types.ParsedSignal{
		RawText:     text,
		Symbol:      entry.Symbol,
		Side:        types.SideLong,
		Leverage:    entry.CachedLeverage,
		Entries:     append([]float64{}, entry.CachedEntries...),
		TakeProfits: append([]float64{}, entry.CachedTakeProfits...),
		StopLoss:    entry.CachedStopLoss,
		Confidence:  entry.Confidence,
		Locale:      entry.Language,
		Tier:        types.TierFastPath,
	}
	// side is not cached: one structure serves both directions
	if side, ok := extract.DetectSide(text); ok {
		sig.Side, sig.SideDetected = side, true
	}
	if sig.Locale == "" {
		sig.Locale = lexicon.DetectLocale(text)
	}
	sig.Notef("tier %s: cache hit %s (confidence %.2f, seen %d)",
		types.TierFastPath, shortHash(entry.StructureHash), entry.Confidence, entry.SuccessCount)
	o.cache.RecordUsage(ctx, entry.StructureHash)
	return sig, true
}

// aiPath returns a converted AI signal, or a non-empty reason why the tier
// declined.
func (o *Orchestrator) aiPath(ctx context.Context, text string) (types.ParsedSignal, string) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.AITimeout)
	defer cancel()

	ext, err := o.ai.Extract(callCtx, text)
	if err != nil {
		// a failed call is the same as no signal
		logger.Warn(ctx, "AI fallback failed, degrading to rule result", "provider", o.ai.Name(), "error", err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return types.ParsedSignal{}, "AI fallback timed out"
		}
		return types.ParsedSignal{}, "AI fallback failed: " + err.Error()
	}
	sig, err := llm.ToSignal(ext, text)
	if err != nil {
		return types.ParsedSignal{}, "AI fallback found no signal"
	}
	if o.oracle != nil && !o.oracle.Exists(sig.Symbol) {
		return types.ParsedSignal{}, "AI symbol " + sig.Symbol + " is not listed"
	}
	return sig, ""
}

func (o *Orchestrator) fallback(ctx context.Context, sig types.ParsedSignal, why string) types.ParsedSignal {
	sig.Tier = types.TierFallback
	sig.Notef("tier %s: rule confidence %.2f < %.2f; %s", types.TierFallback, sig.Confidence, o.cfg.RuleThreshold, why)
	return o.done(ctx, sig)
}

func (o *Orchestrator) learn(ctx context.Context, text string, sig types.ParsedSignal) {
	if o.cache == nil || sig.Symbol == "" {
		return
	}
	o.cache.Learn(ctx, whitelist.Observation{
		Text:        text,
		Symbol:      sig.Symbol,
		Entries:     sig.Entries,
		TakeProfits: sig.TakeProfits,
		StopLoss:    sig.StopLoss,
		Leverage:    sig.Leverage,
		Language:    sig.Locale,
	})
}

func (o *Orchestrator) done(ctx context.Context, sig types.ParsedSignal) types.ParsedSignal {
	if o.rec != nil {
		o.rec.ObserveTier(sig.Tier, sig.Confidence)
	}
	logger.Signal(ctx, sig.Symbol, string(sig.Side), string(sig.Tier), sig.Confidence,
		"entries", len(sig.Entries),
		"take_profits", len(sig.TakeProfits),
		"has_stop", sig.StopLoss != nil,
	)
	return sig
}

func (o *Orchestrator) observeCache(hit bool) {
	if o.rec != nil {
		o.rec.ObserveCache(hit)
	}
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
