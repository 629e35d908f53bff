// Package execution holds the order executors. Only paper trading is
// implemented; fills happen at the signal's first entry price.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/types"
)

var (
	ErrPositionExists = errors.New("position already open")
	ErrNoPosition     = errors.New("no open position")
	ErrInvalidOrder   = errors.New("invalid order")
)

// EquitySink receives realised equity, normally the risk sentinel.
type EquitySink interface {
	Equity() float64
	UpdateEquity(ctx context.Context, equity float64)
}

// ClosedTrade is a realised paper position.
type ClosedTrade struct {
	types.Position
	ExitPrice float64   `json:"exit_price"`
	PnL       float64   `json:"pnl"`
	Reason    string    `json:"reason"`
	ClosedAt  time.Time `json:"closed_at"`
}

// PriceSource quotes last prices for a set of symbols. Symbols it cannot
// quote are left out of the result.
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]float64, error)
}

type Paper struct {
	sink    EquitySink
	now     func() time.Time
	onClose func(context.Context, ClosedTrade)

	mu        sync.Mutex
	positions map[string]types.Position
	closed    []ClosedTrade
}

var _ interfaces.Executor = (*Paper)(nil)

func NewPaper(sink EquitySink) *Paper {
	return &Paper{sink: sink, now: time.Now, positions: make(map[string]types.Position)}
}

// OnClose registers fn to run after every realised close.
func (p *Paper) OnClose(fn func(context.Context, ClosedTrade)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = fn
}

// Execute opens a position for sig with the computed quantity. One position
// per symbol.
func (p *Paper) Execute(ctx context.Context, sig types.ParsedSignal, size types.PositionSize, leverage int) (types.ExecutionResult, error) {
	entry, ok := sig.Entry()
	if !ok || entry <= 0 {
		return types.ExecutionResult{}, fmt.Errorf("%w: no entry price", ErrInvalidOrder)
	}
	if size.Quantity <= 0 {
		return types.ExecutionResult{}, fmt.Errorf("%w: quantity %v", ErrInvalidOrder, size.Quantity)
	}
	if leverage < 1 {
		leverage = 1
	}

	p.mu.Lock()
	if _, exists := p.positions[sig.Symbol]; exists {
		p.mu.Unlock()
		return types.ExecutionResult{}, fmt.Errorf("%w: %s", ErrPositionExists, sig.Symbol)
	}
	pos := types.Position{
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Quantity:   size.Quantity,
		EntryPrice: entry,
		Leverage:   leverage,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit(),
		OrderID:    "paper-" + uuid.NewString(),
		OpenedAt:   p.now().UTC(),
	}
	p.positions[sig.Symbol] = pos
	p.mu.Unlock()

	logger.Trade(ctx, pos.Symbol, string(pos.Side), pos.Quantity, pos.EntryPrice, pos.OrderID,
		"leverage", leverage,
		"margin", margin(pos),
	)
	return types.ExecutionResult{
		OrderID:  pos.OrderID,
		Symbol:   pos.Symbol,
		Side:     pos.Side,
		Quantity: pos.Quantity,
		Price:    pos.EntryPrice,
		Leverage: leverage,
		Status:   "FILLED",
		Time:     pos.OpenedAt,
	}, nil
}

// OpenPositions returns the open positions sorted by opening time.
func (p *Paper) OpenPositions() []types.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Close realises the position on symbol at price and pushes the new equity
// to the sink.
func (p *Paper) Close(ctx context.Context, symbol string, price float64, reason string) (ClosedTrade, error) {
	if price <= 0 {
		return ClosedTrade{}, fmt.Errorf("%w: exit price %v", ErrInvalidOrder, price)
	}
	p.mu.Lock()
	pos, ok := p.positions[symbol]
	if !ok {
		p.mu.Unlock()
		return ClosedTrade{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	delete(p.positions, symbol)
	trade := ClosedTrade{
		Position:  pos,
		ExitPrice: price,
		PnL:       pnl(pos, price).InexactFloat64(),
		Reason:    reason,
		ClosedAt:  p.now().UTC(),
	}
	p.closed = append(p.closed, trade)
	onClose := p.onClose
	p.mu.Unlock()

	if p.sink != nil {
		equity := decimal.NewFromFloat(p.sink.Equity()).Add(decimal.NewFromFloat(trade.PnL))
		p.sink.UpdateEquity(ctx, equity.InexactFloat64())
	}
	logger.Info(ctx, "Paper position closed",
		"symbol", symbol,
		"order_id", pos.OrderID,
		"exit_price", price,
		"pnl", trade.PnL,
		"reason", reason,
	)
	if onClose != nil {
		onClose(ctx, trade)
	}
	return trade, nil
}

// MarkPrice closes the position on symbol when price has reached its stop
// loss or first take-profit. It reports whether a close happened.
func (p *Paper) MarkPrice(ctx context.Context, symbol string, price float64) (bool, error) {
	p.mu.Lock()
	pos, ok := p.positions[symbol]
	p.mu.Unlock()
	if !ok {
		return false, nil
	}

	long := pos.Side != types.SideShort
	switch {
	case pos.StopLoss != nil && ((long && price <= *pos.StopLoss) || (!long && price >= *pos.StopLoss)):
		_, err := p.Close(ctx, symbol, price, "stop_loss")
		return err == nil, err
	case pos.TakeProfit != nil && ((long && price >= *pos.TakeProfit) || (!long && price <= *pos.TakeProfit)):
		_, err := p.Close(ctx, symbol, price, "take_profit")
		return err == nil, err
	}
	return false, nil
}

// MarkAll quotes every open position through src and applies MarkPrice. It
// returns how many positions closed. A symbol missing from the quote is
// skipped.
func (p *Paper) MarkAll(ctx context.Context, src PriceSource) (int, error) {
	open := p.OpenPositions()
	if len(open) == 0 {
		return 0, nil
	}
	syms := make([]string, len(open))
	for i, pos := range open {
		syms[i] = pos.Symbol
	}
	prices, err := src.Prices(ctx, syms)
	if err != nil {
		return 0, fmt.Errorf("quote open positions: %w", err)
	}

	var closed int
	var errs []error
	for _, sym := range syms {
		price, ok := prices[sym]
		if !ok || price <= 0 {
			logger.Debug(ctx, "No quote for open position", "symbol", sym)
			continue
		}
		done, err := p.MarkPrice(ctx, sym, price)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if done {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

// ClosedTrades returns the realised history.
func (p *Paper) ClosedTrades() []ClosedTrade {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ClosedTrade(nil), p.closed...)
}

func pnl(pos types.Position, exit float64) decimal.Decimal {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(pos.EntryPrice))
	if pos.Side == types.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(pos.Quantity))
}

func margin(pos types.Position) float64 {
	value := decimal.NewFromFloat(pos.Quantity).Mul(decimal.NewFromFloat(pos.EntryPrice))
	return value.Div(decimal.NewFromInt(int64(pos.Leverage))).InexactFloat64()
}
