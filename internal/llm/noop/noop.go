package noop

import (
	"context"

	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/types"
)

// Extractor stands in when no AI provider is configured. It always answers
// with the negative shape.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string { return "noop" }

func (e *Extractor) Extract(ctx context.Context, text string) (types.AIExtraction, error) {
	logger.Debug(ctx, "Noop extractor called - no AI configured", "text_len", len(text))
	return types.NoSignal(e.Name()), nil
}
