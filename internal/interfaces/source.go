package interfaces

import (
	"context"

	"signal-trading-bot/internal/types"
)

// MessageSource delivers raw channel messages. Next blocks until a message
// is available, ctx is done, or the source is exhausted (io.EOF).
type MessageSource interface {
	Next(ctx context.Context) (types.Message, error)
	Ack(ctx context.Context, msg types.Message) error
	Close() error
}
