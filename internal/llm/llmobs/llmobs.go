package llmobs

import (
	"context"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/trace"
	"signal-trading-bot/internal/types"
)

// Recorder receives per-call outcomes, e.g. the metrics package.
type Recorder interface {
	ObserveAI(provider, outcome string, seconds float64)
}

// observableExtractor wraps an AIExtractor with logging, tracing and metrics.
type observableExtractor struct {
	ext interfaces.AIExtractor
	rec Recorder
}

var _ interfaces.AIExtractor = (*observableExtractor)(nil)

// Wrap decorates ext. rec may be nil.
func Wrap(ext interfaces.AIExtractor, rec Recorder) interfaces.AIExtractor {
	return &observableExtractor{ext: ext, rec: rec}
}

func (o *observableExtractor) Name() string { return o.ext.Name() }

func (o *observableExtractor) Extract(ctx context.Context, text string) (types.AIExtraction, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Extract")
	defer span.End()

	// DebugSkip(1) reports the caller, not this wrapper
	logger.DebugSkip(ctx, 1, "Requesting AI extraction",
		"provider", o.ext.Name(),
		"text_len", len(text),
	)

	op := logger.StartOperation(ctx, "ai_extract", "provider", o.ext.Name())
	ext, err := o.ext.Extract(op.GetContext(), text)
	if err != nil {
		elapsed := op.EndWithError(err)
		trace.RecordError(ctx, err)
		o.observe("error", elapsed.Seconds())
		logger.ErrorWithErrSkip(ctx, 1, "AI extraction failed", err, "provider", o.ext.Name())
		return ext, err
	}

	outcome := "no_signal"
	if ext.Signal {
		outcome = "signal"
	}
	elapsed := op.End("outcome", outcome)
	o.observe(outcome, elapsed.Seconds())

	logger.InfoSkip(ctx, 1, "AI extraction received",
		"provider", ext.Provider,
		"signal", ext.Signal,
		"symbol", ext.Symbol,
		"side", ext.Side,
		"confidence", ext.Confidence,
	)
	return ext, nil
}

func (o *observableExtractor) observe(outcome string, seconds float64) {
	if o.rec != nil {
		o.rec.ObserveAI(o.ext.Name(), outcome, seconds)
	}
}
