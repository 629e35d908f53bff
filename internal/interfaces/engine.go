package interfaces

import (
	"context"

	"signal-trading-bot/internal/types"
)

// Engine runs one message through parse, risk gate and execution.
type Engine interface {
	Process(ctx context.Context, msg types.Message) (*types.Outcome, error)
}
