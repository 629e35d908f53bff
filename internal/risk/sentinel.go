// Package risk implements the pre-trade gate: kill switch, loss circuit
// breaker, symbol lists, price sanity, exposure warnings and sizing.
package risk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/types"
)

// ErrKillSwitchIO wraps failures to create or remove the kill-switch marker.
var ErrKillSwitchIO = errors.New("kill switch io")

type Limits struct {
	DailyLossPct           float64 // fraction of day-start equity, 0.05 = 5%
	WeeklyLossPct          float64
	RiskPct                float64 // equity risked per trade
	MaxOpenPositions       int     // 0 disables the check
	MaxPositionPct         float64 // position value cap as fraction of equity; 0 disables
	MaxPerCorrelationGroup int
	MinRewardRisk          float64
	WideStopPct            float64
}

func DefaultLimits() Limits {
	return Limits{
		DailyLossPct:           0.05,
		WeeklyLossPct:          0.10,
		RiskPct:                0.01,
		MaxOpenPositions:       5,
		MaxPositionPct:         0.20,
		MaxPerCorrelationGroup: 2,
		MinRewardRisk:          1.5,
		WideStopPct:            0.10,
	}
}

type Options struct {
	InitialEquity  float64
	Limits         Limits
	KillSwitchPath string // marker file; empty disables the kill switch
	ListConfigPath string // persisted symbol lists; empty keeps them in memory
	Now            func() time.Time
}

// SignalCheck is the input of ValidateSignal.
type SignalCheck struct {
	Symbol        string
	Side          types.Side
	Entry         float64
	StopLoss      *float64
	TakeProfit    *float64
	OpenPositions []types.Position
}

// Metrics is a snapshot of the sentinel state.
type Metrics struct {
	Equity              float64    `json:"equity"`
	DailyStartEquity    float64    `json:"daily_start_equity"`
	WeeklyStartEquity   float64    `json:"weekly_start_equity"`
	DailyPnL            float64    `json:"daily_pnl"`
	DailyPnLPct         float64    `json:"daily_pnl_pct"`
	WeeklyPnL           float64    `json:"weekly_pnl"`
	WeeklyPnLPct        float64    `json:"weekly_pnl_pct"`
	CircuitBreaker      bool       `json:"circuit_breaker_active"`
	CircuitBreakerSince *time.Time `json:"circuit_breaker_since,omitempty"`
	KillSwitch          bool       `json:"kill_switch_active"`
	Limits              Limits     `json:"limits"`
	Whitelist           int        `json:"whitelist_size"`
	Blacklist           int        `json:"blacklist_size"`
}

// Sentinel is the risk gate. All state changes and validations are
// serialised by one mutex, so a validation sees either the state before an
// equity update or after it.
type Sentinel struct {
	limits         Limits
	killSwitchPath string
	listPath       string
	now            func() time.Time

	mu               sync.Mutex
	equity           decimal.Decimal
	dailyStart       decimal.Decimal
	weeklyStart      decimal.Decimal
	day              string // UTC yyyy-mm-dd of the daily baseline
	weekYear, week   int
	breakerActive    bool
	breakerTrippedAt time.Time
	lists            ListConfig
}

func New(ctx context.Context, opts Options) *Sentinel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	s := &Sentinel{
		limits:         opts.Limits,
		killSwitchPath: opts.KillSwitchPath,
		listPath:       opts.ListConfigPath,
		now:            opts.Now,
		lists:          DefaultListConfig(),
	}
	eq := decimal.NewFromFloat(opts.InitialEquity)
	s.equity, s.dailyStart, s.weeklyStart = eq, eq, eq
	s.markPeriods(s.now().UTC())

	if s.listPath != "" {
		cfg, err := LoadListConfig(s.listPath)
		switch {
		case err == nil:
			s.lists = cfg
		case errors.Is(err, os.ErrNotExist):
			logger.Info(ctx, "No risk list config, using defaults", "path", s.listPath)
		default:
			logger.ErrorWithErr(ctx, "Risk list config unreadable, using defaults", err, "path", s.listPath)
		}
	}
	s.lists.normalize()
	return s
}

func (s *Sentinel) Limits() Limits { return s.limits }

// ValidateSignal runs the gate. Blocking checks short-circuit in a fixed
// order; advisory findings only add warnings.
func (s *Sentinel) ValidateSignal(ctx context.Context, c SignalCheck) types.ValidationResult {
	symbol := NormalizeSymbol(c.Symbol)
	reject := func(reason string) types.ValidationResult {
		logger.Risk(ctx, symbol, "SIGNAL_REJECTED", "reason", reason)
		return types.ValidationResult{Valid: false, Reason: reason, Warnings: []string{}}
	}

	if active, why := s.KillSwitchActive(); active {
		return reject("kill switch active: " + why)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollPeriodsLocked(ctx)
	if reason, tripped := s.evaluateBreakerLocked(ctx); tripped {
		return reject(reason)
	}
	if len(s.lists.Whitelist) > 0 && !contains(s.lists.Whitelist, symbol) {
		return reject(fmt.Sprintf("symbol %s not in whitelist", symbol))
	}
	if contains(s.lists.Blacklist, symbol) {
		return reject(fmt.Sprintf("symbol %s is blacklisted", symbol))
	}

	if c.Entry <= 0 {
		return reject(fmt.Sprintf("invalid entry price %v", c.Entry))
	}
	if c.StopLoss != nil && *c.StopLoss <= 0 {
		return reject(fmt.Sprintf("invalid stop loss price %v", *c.StopLoss))
	}
	if c.TakeProfit != nil && *c.TakeProfit <= 0 {
		return reject(fmt.Sprintf("invalid take profit price %v", *c.TakeProfit))
	}
	if reason := orderingViolation(c); reason != "" {
		return reject(reason)
	}

	if limit := s.limits.MaxOpenPositions; limit > 0 && len(c.OpenPositions) >= limit {
		return reject(fmt.Sprintf("max open positions reached (%d/%d)", len(c.OpenPositions), limit))
	}

	res := types.ValidationResult{Valid: true, Reason: "approved", Warnings: []string{}}
	res.Warnings = append(res.Warnings, s.correlationWarningsLocked(symbol, c.OpenPositions)...)
	res.Warnings = append(res.Warnings, s.rewardRiskWarnings(c)...)
	if len(res.Warnings) > 0 {
		logger.Risk(ctx, symbol, "SIGNAL_APPROVED_WITH_WARNINGS", "warnings", res.Warnings)
	}
	return res
}

func orderingViolation(c SignalCheck) string {
	switch c.Side {
	case types.SideShort:
		if c.StopLoss != nil && !(*c.StopLoss > c.Entry) {
			return fmt.Sprintf("stop loss %v must be above entry %v for short", *c.StopLoss, c.Entry)
		}
		if c.TakeProfit != nil && !(*c.TakeProfit < c.Entry) {
			return fmt.Sprintf("take profit %v must be below entry %v for short", *c.TakeProfit, c.Entry)
		}
	default:
		if c.StopLoss != nil && !(*c.StopLoss < c.Entry) {
			return fmt.Sprintf("stop loss %v must be below entry %v for long", *c.StopLoss, c.Entry)
		}
		if c.TakeProfit != nil && !(*c.TakeProfit > c.Entry) {
			return fmt.Sprintf("take profit %v must be above entry %v for long", *c.TakeProfit, c.Entry)
		}
	}
	return ""
}

func (s *Sentinel) correlationWarningsLocked(symbol string, open []types.Position) []string {
	if s.limits.MaxPerCorrelationGroup <= 0 {
		return nil
	}
	groups := make([]string, 0, len(s.lists.CorrelationGroups))
	for g := range s.lists.CorrelationGroups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var out []string
	for _, group := range groups {
		members := s.lists.CorrelationGroups[group]
		if !contains(members, symbol) {
			continue
		}
		var held []string
		for _, p := range open {
			if sym := NormalizeSymbol(p.Symbol); contains(members, sym) {
				held = append(held, sym)
			}
		}
		if len(held) >= s.limits.MaxPerCorrelationGroup {
			out = append(out, fmt.Sprintf("correlation group %s already has %d open: %s",
				group, len(held), strings.Join(held, ", ")))
		}
	}
	return out
}

func (s *Sentinel) rewardRiskWarnings(c SignalCheck) []string {
	if c.StopLoss == nil {
		return nil
	}
	var out []string
	risk := abs(c.Entry - *c.StopLoss)
	if c.TakeProfit != nil && risk > 0 {
		reward := abs(*c.TakeProfit - c.Entry)
		if rr := reward / risk; rr < s.limits.MinRewardRisk {
			out = append(out, fmt.Sprintf("reward:risk %.2f below %.2f", rr, s.limits.MinRewardRisk))
		}
	}
	if s.limits.WideStopPct > 0 && risk > c.Entry*s.limits.WideStopPct {
		out = append(out, fmt.Sprintf("stop very wide: %.1f%% from entry", risk/c.Entry*100))
	}
	return out
}

// UpdateEquity records a new account equity, rolling the daily (UTC date)
// and weekly (ISO week) baselines first, then re-evaluating the breaker.
func (s *Sentinel) UpdateEquity(ctx context.Context, equity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollPeriodsLocked(ctx)
	s.equity = decimal.NewFromFloat(equity)
	s.evaluateBreakerLocked(ctx)
}

// rollPeriodsLocked moves the daily and weekly baselines to the current
// equity when the UTC date or ISO week changed since the last call. A new
// day clears a tripped breaker; the next evaluation trips it again if the
// weekly loss still exceeds its limit.
func (s *Sentinel) rollPeriodsLocked(ctx context.Context) {
	now := s.now().UTC()
	if day := now.Format(time.DateOnly); day != s.day {
		s.dailyStart = s.equity
		s.day = day
		if s.breakerActive {
			logger.Risk(ctx, "", "CIRCUIT_BREAKER_RESET", "reason", "new trading day")
		}
		s.breakerActive = false
		s.breakerTrippedAt = time.Time{}
	}
	if y, w := now.ISOWeek(); y != s.weekYear || w != s.week {
		s.weeklyStart = s.equity
		s.weekYear, s.week = y, w
	}
}

// CheckCircuitBreaker re-evaluates and reports the breaker.
func (s *Sentinel) CheckCircuitBreaker(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollPeriodsLocked(ctx)
	_, tripped := s.evaluateBreakerLocked(ctx)
	return tripped
}

// ResetCircuitBreaker clears a tripped breaker by hand. It trips again on the
// next evaluation if losses still exceed a limit.
func (s *Sentinel) ResetCircuitBreaker(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakerActive = false
	s.breakerTrippedAt = time.Time{}
	s.dailyStart, s.weeklyStart = s.equity, s.equity
	logger.Risk(ctx, "", "CIRCUIT_BREAKER_RESET", "reason", "manual")
}

// CanTrade is false while the kill switch or the breaker is active.
func (s *Sentinel) CanTrade(ctx context.Context) bool {
	if active, _ := s.KillSwitchActive(); active {
		return false
	}
	return !s.CheckCircuitBreaker(ctx)
}

func (s *Sentinel) evaluateBreakerLocked(ctx context.Context) (string, bool) {
	if s.breakerActive {
		return "circuit breaker active since " + s.breakerTrippedAt.Format(time.RFC3339), true
	}
	check := func(window string, start decimal.Decimal, limit float64) (string, bool) {
		if limit <= 0 || !start.IsPositive() {
			return "", false
		}
		pnl := s.equity.Sub(start)
		if !pnl.IsNegative() {
			return "", false
		}
		pct := pnl.Abs().Div(start)
		if pct.LessThan(decimal.NewFromFloat(limit)) {
			return "", false
		}
		return fmt.Sprintf("circuit breaker: %s loss %s%% reached limit %.2f%%",
			window, pct.Mul(decimal.NewFromInt(100)).StringFixed(2), limit*100), true
	}

	reason, tripped := check("daily", s.dailyStart, s.limits.DailyLossPct)
	if !tripped {
		reason, tripped = check("weekly", s.weeklyStart, s.limits.WeeklyLossPct)
	}
	if tripped {
		s.breakerActive = true
		s.breakerTrippedAt = s.now().UTC()
		logger.Risk(ctx, "", "CIRCUIT_BREAKER_TRIPPED", "reason", reason, "equity", s.equity.InexactFloat64())
	}
	return reason, tripped
}

func (s *Sentinel) markPeriods(now time.Time) {
	s.day = now.Format(time.DateOnly)
	s.weekYear, s.week = now.ISOWeek()
}

// KillSwitchActive checks the marker file. An unreadable marker location
// counts as active.
func (s *Sentinel) KillSwitchActive() (bool, string) {
	if s.killSwitchPath == "" {
		return false, ""
	}
	data, err := os.ReadFile(s.killSwitchPath)
	switch {
	case err == nil:
		reason := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
		reason = strings.TrimPrefix(reason, "reason: ")
		if reason == "" {
			reason = "marker present"
		}
		return true, reason
	case errors.Is(err, os.ErrNotExist):
		return false, ""
	default:
		return true, "marker unreadable: " + err.Error()
	}
}

// ActivateKillSwitch writes the marker with reason and timestamp.
func (s *Sentinel) ActivateKillSwitch(ctx context.Context, reason string) error {
	if s.killSwitchPath == "" {
		return fmt.Errorf("%w: no kill switch path configured", ErrKillSwitchIO)
	}
	if reason == "" {
		reason = "manual"
	}
	body := fmt.Sprintf("reason: %s\nactivated_at: %s\n", reason, s.now().UTC().Format(time.RFC3339))
	if err := os.MkdirAll(filepath.Dir(s.killSwitchPath), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrKillSwitchIO, err)
	}
	if err := os.WriteFile(s.killSwitchPath, []byte(body), 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrKillSwitchIO, err)
	}
	logger.Risk(ctx, "", "KILL_SWITCH_ACTIVATED", "reason", reason)
	return nil
}

func (s *Sentinel) DeactivateKillSwitch(ctx context.Context) error {
	if s.killSwitchPath == "" {
		return nil
	}
	if err := os.Remove(s.killSwitchPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrKillSwitchIO, err)
	}
	logger.Risk(ctx, "", "KILL_SWITCH_DEACTIVATED")
	return nil
}

// Size applies CalculateSafeQuantity at the current equity and configured
// risk, then caps the position value at MaxPositionPct of equity.
func (s *Sentinel) Size(entry float64, stopLoss *float64) types.PositionSize {
	s.mu.Lock()
	equity := s.equity.InexactFloat64()
	s.mu.Unlock()

	size := CalculateSafeQuantity(equity, entry, stopLoss, s.limits.RiskPct)
	if s.limits.MaxPositionPct > 0 {
		size = capPosition(size, entry, equity*s.limits.MaxPositionPct)
	}
	return size
}

func (s *Sentinel) Equity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.equity.InexactFloat64()
}

func (s *Sentinel) Metrics() Metrics {
	killed, _ := s.KillSwitchActive()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollPeriodsLocked(context.Background())
	pct := func(pnl, start decimal.Decimal) float64 {
		if !start.IsPositive() {
			return 0
		}
		return pnl.Div(start).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	daily := s.equity.Sub(s.dailyStart)
	weekly := s.equity.Sub(s.weeklyStart)
	m := Metrics{
		Equity:            s.equity.InexactFloat64(),
		DailyStartEquity:  s.dailyStart.InexactFloat64(),
		WeeklyStartEquity: s.weeklyStart.InexactFloat64(),
		DailyPnL:          daily.InexactFloat64(),
		DailyPnLPct:       pct(daily, s.dailyStart),
		WeeklyPnL:         weekly.InexactFloat64(),
		WeeklyPnLPct:      pct(weekly, s.weeklyStart),
		CircuitBreaker:    s.breakerActive,
		KillSwitch:        killed,
		Limits:            s.limits,
		Whitelist:         len(s.lists.Whitelist),
		Blacklist:         len(s.lists.Blacklist),
	}
	if s.breakerActive {
		t := s.breakerTrippedAt
		m.CircuitBreakerSince = &t
	}
	return m
}

// Lists returns a copy of the symbol lists.
func (s *Sentinel) Lists() ListConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ListConfig{
		Whitelist:         append([]string(nil), s.lists.Whitelist...),
		Blacklist:         append([]string(nil), s.lists.Blacklist...),
		CorrelationGroups: make(map[string][]string, len(s.lists.CorrelationGroups)),
	}
	for g, m := range s.lists.CorrelationGroups {
		out.CorrelationGroups[g] = append([]string(nil), m...)
	}
	return out
}

func (s *Sentinel) AddToWhitelist(symbol string) bool {
	return s.editList(func(l *ListConfig) (changed bool) {
		l.Whitelist, changed = insert(l.Whitelist, NormalizeSymbol(symbol))
		return
	})
}

func (s *Sentinel) RemoveFromWhitelist(symbol string) bool {
	return s.editList(func(l *ListConfig) (changed bool) {
		l.Whitelist, changed = remove(l.Whitelist, NormalizeSymbol(symbol))
		return
	})
}

func (s *Sentinel) AddToBlacklist(symbol string) bool {
	return s.editList(func(l *ListConfig) (changed bool) {
		l.Blacklist, changed = insert(l.Blacklist, NormalizeSymbol(symbol))
		return
	})
}

func (s *Sentinel) RemoveFromBlacklist(symbol string) bool {
	return s.editList(func(l *ListConfig) (changed bool) {
		l.Blacklist, changed = remove(l.Blacklist, NormalizeSymbol(symbol))
		return
	})
}

func (s *Sentinel) SetCorrelationGroup(name string, symbols []string) {
	s.editList(func(l *ListConfig) bool {
		l.CorrelationGroups[name] = normalizeList(symbols)
		return true
	})
}

func (s *Sentinel) editList(fn func(*ListConfig) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.lists)
}

// SaveLists persists the symbol lists to the configured path.
func (s *Sentinel) SaveLists() error {
	if s.listPath == "" {
		return nil
	}
	return SaveListConfig(s.listPath, s.Lists())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
