package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"signal-trading-bot/internal/lexicon"
	"signal-trading-bot/internal/normalize"
	"signal-trading-bot/internal/types"
)

var (
	// ErrNoSignal means the model answered with the negative shape.
	ErrNoSignal = errors.New("no signal")
	// ErrInvalidResponse means no JSON object could be recovered from the reply.
	ErrInvalidResponse = errors.New("invalid AI response")
	// ErrRateLimited marks provider errors caused by quota or HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoProviders is returned by a Pool with nothing left to call.
	ErrNoProviders = errors.New("no AI provider available")
)

var (
	fenceRe         = regexp.MustCompile("(?i)```(?:json)?")
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	pairSepRe       = regexp.MustCompile(`[/\-_ #]`)
	quoteSuffixRe   = regexp.MustCompile(`(?:USDT|BUSD|USDC|USD)$`)
)

// IsRateLimitError recognises quota errors from any provider by message.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "429") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(s), "rate limit")
}

// ExtractJSON recovers the first JSON object from a model reply: markdown
// fences and <think> blocks are dropped, then unquoted keys, single quotes
// and trailing commas are repaired.
func ExtractJSON(content string) (string, bool) {
	s := strings.TrimSpace(content)
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	s = fenceRe.ReplaceAllString(s, "")

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	end := matchingBrace(s, start)
	if end < 0 {
		end = strings.LastIndexByte(s, '}')
		if end < start {
			return "", false
		}
	}
	s = s[start : end+1]

	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s), true
}

// matchingBrace returns the index of the brace closing s[open], or -1.
func matchingBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// numbers accepts a JSON number, a numeric string in any locale, an array
// of either, or null.
type numbers []float64

func (n *numbers) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = nil
		return nil
	}
	if b[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		var out numbers
		for _, item := range items {
			var one numbers
			if err := one.UnmarshalJSON(item); err != nil {
				return err
			}
			out = append(out, one...)
		}
		*n = out
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = normalize.All(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = numbers{v}
	return nil
}

type rawExtraction struct {
	Signal     *bool   `json:"signal"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Entry      numbers `json:"entry"`
	TP         numbers `json:"tp"`
	SL         numbers `json:"sl"`
	Leverage   numbers `json:"leverage"`
	Confidence numbers `json:"confidence"`
}

// Decode turns a raw model reply into an extraction. A reply without a
// symbol is read as the negative shape.
func Decode(content, provider string) (types.AIExtraction, error) {
	js, ok := ExtractJSON(content)
	if !ok {
		return types.NoSignal(provider), fmt.Errorf("%w: no JSON object in reply", ErrInvalidResponse)
	}
	var raw rawExtraction
	if err := json.Unmarshal([]byte(js), &raw); err != nil {
		return types.NoSignal(provider), fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if raw.Signal != nil && !*raw.Signal {
		return types.NoSignal(provider), nil
	}
	symbol := normalizeSymbol(raw.Symbol)
	if symbol == "" {
		return types.NoSignal(provider), nil
	}

	out := types.AIExtraction{
		Signal:      true,
		Symbol:      symbol,
		Side:        strings.ToLower(strings.TrimSpace(raw.Side)),
		Entries:     []float64(raw.Entry),
		TakeProfits: []float64(raw.TP),
		Provider:    provider,
	}
	if len(raw.SL) > 0 {
		out.StopLoss = types.Float(raw.SL[0])
	}
	if len(raw.Leverage) > 0 {
		out.Leverage = int(raw.Leverage[0])
	}
	if len(raw.Confidence) > 0 {
		out.Confidence = min(max(raw.Confidence[0], 0), 1)
	}
	return out, nil
}

func normalizeSymbol(s string) string {
	s = strings.ToUpper(pairSepRe.ReplaceAllString(strings.TrimSpace(s), ""))
	base := quoteSuffixRe.ReplaceAllString(s, "")
	if base == "" {
		return ""
	}
	return base + "USDT"
}

// ToSignal converts a positive extraction into a ParsedSignal scored with the
// same field-presence formula as the rule engine. The model's own confidence
// is kept as a note only.
func ToSignal(ext types.AIExtraction, rawText string) (types.ParsedSignal, error) {
	if !ext.Signal || ext.Symbol == "" {
		return types.ParsedSignal{}, ErrNoSignal
	}
	sig := types.ParsedSignal{
		RawText:     rawText,
		Symbol:      ext.Symbol,
		Side:        types.SideLong,
		Entries:     positive(ext.Entries),
		TakeProfits: positive(ext.TakeProfits),
		Locale:      lexicon.DetectLocale(rawText),
		Tier:        types.TierAIPath,
	}
	if side, ok := types.ParseSide(ext.Side); ok {
		sig.Side, sig.SideDetected = side, true
	}
	if ext.StopLoss != nil && *ext.StopLoss > 0 {
		sig.StopLoss = types.Float(*ext.StopLoss)
	}
	if ext.Leverage >= 1 && ext.Leverage <= 125 {
		sig.Leverage = ext.Leverage
	}
	sig.Confidence = sig.Score()
	sig.Notef("ai provider %s reported confidence %.2f", ext.Provider, ext.Confidence)
	return sig, nil
}

func positive(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v > 0 {
			out = append(out, v)
		}
	}
	return out
}
