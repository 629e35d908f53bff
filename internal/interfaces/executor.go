package interfaces

import (
	"context"

	"signal-trading-bot/internal/types"
)

// Executor places (or simulates) orders for approved signals.
type Executor interface {
	Execute(ctx context.Context, sig types.ParsedSignal, size types.PositionSize, leverage int) (types.ExecutionResult, error)
	OpenPositions() []types.Position
}
