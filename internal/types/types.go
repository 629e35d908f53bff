package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide accepts long/short and buy/sell in any case.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return SideLong, true
	case "short", "sell":
		return SideShort, true
	}
	return "", false
}

type Locale string

const (
	LocaleTR      Locale = "tr"
	LocaleEN      Locale = "en"
	LocaleMixed   Locale = "mixed"
	LocaleUnknown Locale = "unknown"
)

// Tier names the parsing route that produced a signal.
type Tier string

const (
	TierFastPath Tier = "FAST_PATH"
	TierRulePath Tier = "RULE_PATH"
	TierAIPath   Tier = "AI_PATH"
	TierFallback Tier = "FALLBACK"
)

// ParsedSignal is the structured form of one channel message.
//
// Side always carries a value (long when nothing was detected);
// SideDetected records whether it came from the text.
type ParsedSignal struct {
	RawText      string    `json:"raw_text"`
	Symbol       string    `json:"symbol,omitempty"`
	Side         Side      `json:"side"`
	SideDetected bool      `json:"side_detected"`
	Leverage     int       `json:"leverage,omitempty"` // 0 = caller default
	Entries      []float64 `json:"entries"`
	TakeProfits  []float64 `json:"take_profits"`
	StopLoss     *float64  `json:"stop_loss,omitempty"`
	Confidence   float64   `json:"confidence"`
	Locale       Locale    `json:"locale"`
	Tier         Tier      `json:"tier"`
	Notes        []string  `json:"notes"`
}

// Score is the field-presence confidence: 0.2 for each of symbol, detected
// side, entries, take-profits and stop-loss.
func (s *ParsedSignal) Score() float64 {
	n := 0
	if s.Symbol != "" {
		n++
	}
	if s.SideDetected {
		n++
	}
	if len(s.Entries) > 0 {
		n++
	}
	if len(s.TakeProfits) > 0 {
		n++
	}
	if s.StopLoss != nil {
		n++
	}
	return math.Min(float64(n)/5, 1.0)
}

func (s *ParsedSignal) Notef(format string, args ...any) {
	s.Notes = append(s.Notes, fmt.Sprintf(format, args...))
}

// Entry returns the first entry price.
func (s *ParsedSignal) Entry() (float64, bool) {
	if len(s.Entries) == 0 {
		return 0, false
	}
	return s.Entries[0], true
}

// TakeProfit returns the first take-profit level, nil when there is none.
func (s *ParsedSignal) TakeProfit() *float64 {
	if len(s.TakeProfits) == 0 {
		return nil
	}
	tp := s.TakeProfits[0]
	return &tp
}

// Actionable reports whether the signal carries enough to place a trade.
func (s *ParsedSignal) Actionable() bool {
	return s.Symbol != "" && len(s.Entries) > 0
}

// Clone returns a deep copy.
func (s ParsedSignal) Clone() ParsedSignal {
	out := s
	out.Entries = append([]float64(nil), s.Entries...)
	out.TakeProfits = append([]float64(nil), s.TakeProfits...)
	out.Notes = append([]string(nil), s.Notes...)
	if s.StopLoss != nil {
		sl := *s.StopLoss
		out.StopLoss = &sl
	}
	return out
}

func Float(v float64) *float64 { return &v }

// AIExtraction is the answer of an AI fallback provider. Signal=false is the
// explicit "no signal" shape; every other field is then ignored.
type AIExtraction struct {
	Signal      bool      `json:"signal"`
	Symbol      string    `json:"symbol,omitempty"`
	Side        string    `json:"side,omitempty"`
	Entries     []float64 `json:"entry,omitempty"`
	TakeProfits []float64 `json:"tp,omitempty"`
	StopLoss    *float64  `json:"sl,omitempty"`
	Leverage    int       `json:"leverage,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Provider    string    `json:"provider,omitempty"`
}

// NoSignal is the negative AI answer.
func NoSignal(provider string) AIExtraction {
	return AIExtraction{Signal: false, Provider: provider}
}

// Message is one raw channel post delivered by a message source.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
}

// ValidationResult is the risk gate verdict. A rejection is a normal outcome.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason"`
	Warnings []string `json:"warnings"`
}

type PositionSize struct {
	Quantity      float64  `json:"quantity"`
	PositionValue float64  `json:"position_value"`
	RiskAmount    float64  `json:"risk_amount"`
	RiskPerUnit   float64  `json:"risk_per_unit"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Position is an open trade as seen by the risk gate.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	Leverage   int       `json:"leverage"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	OrderID    string    `json:"order_id"`
	OpenedAt   time.Time `json:"opened_at"`
}

type ExecutionResult struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Leverage int       `json:"leverage"`
	Status   string    `json:"status"`
	Time     time.Time `json:"time"`
}

// Outcome records what the pipeline did with one message.
type Outcome struct {
	MessageID  string            `json:"message_id"`
	Channel    string            `json:"channel"`
	Signal     ParsedSignal      `json:"signal"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Size       *PositionSize     `json:"size,omitempty"`
	Execution  *ExecutionResult  `json:"execution,omitempty"`
	Skipped    string            `json:"skipped,omitempty"`
}
