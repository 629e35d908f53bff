package engineobs

import (
	"context"
	"time"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/trace"
	"signal-trading-bot/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Process(ctx context.Context, msg types.Message) (*types.Outcome, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Process")
	defer span.End()

	start := time.Now()

	logger.DebugSkip(ctx, 1, "Processing message",
		"message_id", msg.ID,
		"channel", msg.Channel,
		"text_len", len(msg.Text),
	)

	out, err := oe.engine.Process(ctx, msg)
	if err != nil {
		trace.RecordError(ctx, err)
		logger.ErrorWithErrSkip(ctx, 1, "Message processing failed", err,
			"message_id", msg.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return out, err
	}

	fields := []any{
		"message_id", msg.ID,
		"symbol", out.Signal.Symbol,
		"tier", out.Signal.Tier,
		"confidence", out.Signal.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if logger.IsDebugEnabled() {
		fields = append(fields, "notes", out.Signal.Notes)
	}
	switch {
	case out.Execution != nil:
		logger.InfoSkip(ctx, 1, "Signal executed", append(fields, "order_id", out.Execution.OrderID)...)
	case out.Validation != nil && !out.Validation.Valid:
		logger.WarnSkip(ctx, 1, "Signal rejected by risk gate", append(fields, "reason", out.Validation.Reason)...)
	default:
		logger.DebugSkip(ctx, 1, "Message skipped", append(fields, "skipped", out.Skipped)...)
	}
	return out, nil
}
