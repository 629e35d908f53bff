package interfaces

import (
	"context"

	"signal-trading-bot/internal/types"
)

// AIExtractor is the AI fallback capability. Implementations return
// types.NoSignal when the text carries no trade; errors mean the call itself
// failed and callers treat them the same as no signal.
type AIExtractor interface {
	Name() string
	Extract(ctx context.Context, text string) (types.AIExtraction, error)
}
