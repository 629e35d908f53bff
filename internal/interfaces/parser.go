package interfaces

import (
	"context"

	"signal-trading-bot/internal/types"
)

// Parser turns raw message text into a signal. It never fails; weak input
// produces a low-confidence signal.
type Parser interface {
	Parse(ctx context.Context, text string) types.ParsedSignal
}
