// Package engine runs messages through the whole pipeline: parse, gate,
// size, execute, journal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/journal"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/risk"
	"signal-trading-bot/internal/source"
	"signal-trading-bot/internal/types"
)

// Skip reasons recorded on outcomes and metrics.
const (
	SkipDuplicate     = "duplicate"
	SkipNotActionable = "not_actionable"
	SkipLowConfidence = "low_confidence"
	SkipRejected      = "risk_rejected"
	SkipUnsized       = "unsized"
	SkipDryRun        = "dry_run"
)

type Options struct {
	MinConfidence   float64       // signals below this never reach the gate
	DefaultLeverage int           // used when the signal names none
	DedupWindow     time.Duration // identical (channel, text) inside it are skipped
	DryRun          bool          // validate and size but do not execute
}

// Recorder receives pipeline outcomes, e.g. the metrics package.
type Recorder interface {
	ObserveRisk(valid bool)
	ObserveExecution(status string)
	ObserveSkip(reason string)
	SetAccount(equity float64, open int, breakerActive bool)
}

type Engine struct {
	opts     Options
	parser   interfaces.Parser
	sentinel *risk.Sentinel
	exec     interfaces.Executor
	journal  *journal.Journal
	rec      Recorder
	dedup    *dedup
	now      func() time.Time
}

var _ interfaces.Engine = (*Engine)(nil)

type Option func(*Engine)

func WithJournal(j *journal.Journal) Option { return func(e *Engine) { e.journal = j } }

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.rec = r } }

func New(opts Options, parser interfaces.Parser, sentinel *risk.Sentinel, exec interfaces.Executor, options ...Option) *Engine {
	if opts.DefaultLeverage < 1 {
		opts.DefaultLeverage = 1
	}
	e := &Engine{
		opts:     opts,
		parser:   parser,
		sentinel: sentinel,
		exec:     exec,
		now:      time.Now,
	}
	for _, o := range options {
		o(e)
	}
	e.dedup = newDedup(opts.DedupWindow, e.now)
	return e
}

// Process handles one message. Skips and rejections are outcomes, not
// errors; the error is reserved for a failed execution.
func (e *Engine) Process(ctx context.Context, msg types.Message) (*types.Outcome, error) {
	out := &types.Outcome{MessageID: msg.ID, Channel: msg.Channel}
	defer e.record(ctx, out)

	if e.dedup.seen(msg.Channel, msg.Text) {
		out.Skipped = SkipDuplicate
		return out, nil
	}

	sig := e.parser.Parse(ctx, msg.Text)
	out.Signal = sig
	if !sig.Actionable() {
		out.Skipped = SkipNotActionable
		return out, nil
	}
	if sig.Confidence < e.opts.MinConfidence {
		out.Skipped = SkipLowConfidence
		return out, nil
	}

	entry, _ := sig.Entry()
	var open []types.Position
	if e.exec != nil {
		open = e.exec.OpenPositions()
	}
	v := e.sentinel.ValidateSignal(ctx, risk.SignalCheck{
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Entry:         entry,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit(),
		OpenPositions: open,
	})
	out.Validation = &v
	e.journalDecision(ctx, sig, v)
	if e.rec != nil {
		e.rec.ObserveRisk(v.Valid)
	}
	if !v.Valid {
		out.Skipped = SkipRejected
		return out, nil
	}

	size := e.sentinel.Size(entry, sig.StopLoss)
	out.Size = &size
	if size.Quantity <= 0 {
		out.Skipped = SkipUnsized
		return out, nil
	}
	if e.opts.DryRun || e.exec == nil {
		out.Skipped = SkipDryRun
		return out, nil
	}

	leverage := sig.Leverage
	if leverage == 0 {
		leverage = e.opts.DefaultLeverage
	}
	res, err := e.exec.Execute(ctx, sig, size, leverage)
	if err != nil {
		if e.rec != nil {
			e.rec.ObserveExecution("failed")
		}
		return out, fmt.Errorf("execute %s: %w", sig.Symbol, err)
	}
	out.Execution = &res
	if e.rec != nil {
		e.rec.ObserveExecution(res.Status)
	}
	if e.journal != nil {
		if err := e.journal.AppendTrade(journal.TradeEntry{
			Symbol:  res.Symbol,
			Side:    string(res.Side),
			OrderID: res.OrderID,
			Action:  "OPEN",
			Qty:     res.Quantity,
			Price:   res.Price,
			Extra:   map[string]any{"leverage": res.Leverage, "tier": sig.Tier},
		}); err != nil {
			logger.ErrorWithErr(ctx, "Failed to journal trade", err, "order_id", res.OrderID)
		}
	}
	return out, nil
}

// Run feeds src into eng until the source is exhausted, closed or ctx ends.
// Each message is acknowledged after processing, including failed
// executions, so a bad signal is not replayed forever.
func Run(ctx context.Context, eng interfaces.Engine, src interfaces.MessageSource) error {
	for {
		msg, err := src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, source.ErrClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("read message: %w", err)
		}

		if _, err := eng.Process(ctx, msg); err != nil {
			logger.ErrorWithErr(ctx, "Message processing failed", err, "message_id", msg.ID)
		}
		if err := src.Ack(ctx, msg); err != nil {
			logger.ErrorWithErr(ctx, "Failed to ack message", err, "message_id", msg.ID)
		}
	}
}

func (e *Engine) record(ctx context.Context, out *types.Outcome) {
	if out.Skipped != "" && e.rec != nil {
		e.rec.ObserveSkip(out.Skipped)
	}
	if e.rec != nil {
		m := e.sentinel.Metrics()
		open := 0
		if e.exec != nil {
			open = len(e.exec.OpenPositions())
		}
		e.rec.SetAccount(m.Equity, open, m.CircuitBreaker)
	}
	if e.journal != nil {
		if err := e.journal.AppendOutcome(*out); err != nil {
			logger.ErrorWithErr(ctx, "Failed to journal outcome", err, "message_id", out.MessageID)
		}
	}
}

func (e *Engine) journalDecision(ctx context.Context, sig types.ParsedSignal, v types.ValidationResult) {
	if e.journal == nil {
		return
	}
	entry, _ := sig.Entry()
	if err := e.journal.AppendDecision(journal.DecisionEntry{
		Symbol:   sig.Symbol,
		Side:     string(sig.Side),
		Valid:    v.Valid,
		Reason:   v.Reason,
		Warnings: v.Warnings,
		Entry:    entry,
		Tier:     string(sig.Tier),
	}); err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal decision", err, "symbol", sig.Symbol)
	}
}
