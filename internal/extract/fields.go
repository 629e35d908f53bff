package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"signal-trading-bot/internal/lexicon"
	"signal-trading-bot/internal/normalize"
	"signal-trading-bot/internal/types"
)

var (
	sideNumberRe  = regexp.MustCompile(`^\s*:?\s*(\d+(?:[.,]\d+)*(?:\s*(?:kilo|bin|k)\b)?)(\s*x\b)?`)
	listLabelRe   = regexp.MustCompile(`^\s*\d{1,2}\s*(?:[:)]|\.(?:\s|$))\s*`)
	percentRe     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%|%\s*(\d+(?:[.,]\d+)?)`)
	levDigitsRe   = regexp.MustCompile(`\d{1,3}`)
	tpContinueRe  = regexp.MustCompile(`^(?:\d|[-*•>·]|tp|hedef|target)`)
)

const maxLeverage = 125

// DetectSide reports the side named in text, if any.
func DetectSide(text string) (types.Side, bool) {
	s, _, ok := detectSide(lexicon.Fold(lexicon.Clean(text)))
	return s, ok
}

// detectSide returns the earliest long or short keyword in folded text and
// the offset just past it. The "al" of "kar al" (take profit) is skipped.
func detectSide(folded string) (types.Side, int, bool) {
	longAt, longEnd := firstSideKeyword(lexicon.LongRe, folded)
	shortAt, shortEnd := firstSideKeyword(lexicon.ShortRe, folded)
	switch {
	case longAt < 0 && shortAt < 0:
		return "", 0, false
	case shortAt < 0 || (longAt >= 0 && longAt < shortAt):
		return types.SideLong, longEnd, true
	default:
		return types.SideShort, shortEnd, true
	}
}

func firstSideKeyword(re *regexp.Regexp, folded string) (int, int) {
	for _, loc := range re.FindAllStringIndex(folded, -1) {
		if folded[loc[0]:loc[1]] == "al" && lexicon.TakeProfitPhraseRe.MatchString(folded[:loc[0]]) {
			continue
		}
		return loc[0], loc[1]
	}
	return -1, -1
}

func sideIn(window string) (types.Side, bool) {
	s, _, ok := detectSide(window)
	return s, ok
}

func (e *Engine) side(m *message, sig *types.ParsedSignal) {
	if w, ok := m.layout.window(lexicon.FieldSide); ok {
		if s, ok := sideIn(w); ok {
			sig.Side, sig.SideDetected = s, true
			sig.Notef("side: %s (label)", s)
			return
		}
	}
	if s, end, ok := detectSide(m.folded); ok {
		sig.Side, sig.SideDetected = s, true
		m.sideEnd = end
		sig.Notef("side: %s", s)
		return
	}
	sig.Side = types.SideLong
	sig.Notef("side not detected, defaulting to long")
}

func (e *Engine) leverage(m *message, sig *types.ParsedSignal) {
	if w, ok := m.layout.window(lexicon.FieldLeverage); ok {
		if d := levDigitsRe.FindString(w); d != "" {
			if v, _ := strconv.Atoi(d); v >= 1 && v <= maxLeverage {
				sig.Leverage = v
				sig.Notef("leverage: %dx (label)", v)
				return
			}
		}
	}
	for _, match := range lexicon.LeverageValueRe.FindAllStringSubmatch(m.folded, -1) {
		raw := firstGroup(match)
		v, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if v < 1 || v > maxLeverage {
			sig.Notef("leverage %dx out of range", v)
			continue
		}
		sig.Leverage = v
		sig.Notef("leverage: %dx", v)
		return
	}
}

func (e *Engine) entries(m *message, sig *types.ParsedSignal) {
	if w, ok := m.layout.window(lexicon.FieldEntry); ok {
		if vals := e.norm.AllIn(w, m.commaThousands); len(vals) > 0 {
			sig.Entries = vals
			sig.Notef("entries: %v (label)", vals)
			return
		}
	}
	if m.windowsOnly {
		sig.Notef("entries not detected")
		return
	}

	if loc := lexicon.EntryRe.FindStringIndex(m.folded); loc != nil {
		rest := strings.TrimLeft(m.folded[loc[1]:], " \t:")
		window := cutWindow(rest, lexicon.NextKeyword(lexicon.FieldEntry, rest))
		if vals := e.norm.AllIn(window, m.commaThousands); len(vals) > 0 {
			sig.Entries = vals
			sig.Notef("entries: %v", vals)
			return
		}
	}

	if sig.SideDetected && m.sideEnd > 0 {
		// "long 20x" names leverage, not an entry
		if sm := sideNumberRe.FindStringSubmatch(m.folded[m.sideEnd:]); sm != nil && sm[2] == "" {
			if vals := e.norm.AllIn(sm[1], m.commaThousands); len(vals) > 0 {
				sig.Entries = vals[:1]
				sig.Notef("entry after side keyword: %v", sig.Entries)
				return
			}
		}
	}
	sig.Notef("entries not detected")
}

func (e *Engine) takeProfits(m *message, sig *types.ParsedSignal) {
	window, ok := m.layout.window(lexicon.FieldTP)
	if !ok && !m.windowsOnly {
		if loc := lexicon.TPRe.FindStringIndex(m.folded); loc != nil {
			rest := m.folded[loc[1]:]
			if lm := listLabelRe.FindStringIndex(rest); lm != nil {
				rest = rest[lm[1]:]
			} else {
				rest = strings.TrimLeft(rest, " \t:")
			}
			if k := lexicon.NextKeyword(lexicon.FieldTP, rest); k >= 0 {
				rest = rest[:k]
			}
			window, ok = tpLines(rest), true
		}
	}
	if !ok {
		sig.Notef("take-profits not detected")
		return
	}

	if vals, how := e.interpretTakeProfits(window, sig, m.commaThousands); len(vals) > 0 {
		sig.TakeProfits = vals
		sig.Notef("take-profits%s: %v", how, vals)
		return
	}
	sig.Notef("take-profits not detected")
}

// tpLines keeps the first line of a take-profit window and the lines after
// it that continue the list.
func tpLines(rest string) string {
	lines := strings.Split(rest, "\n")
	kept := []string{lines[0]}
	for _, line := range lines[1:] {
		t := strings.TrimSpace(line)
		if t == "" || !tpContinueRe.MatchString(t) {
			break
		}
		kept = append(kept, stripListLabel(t))
	}
	return strings.Join(kept, "\n")
}

// interpretTakeProfits reads a window either as absolute prices or, when an
// entry is known and the window carries '%' or is a bare run of at least
// three integers in 1..10, as percentage offsets from the first entry in the
// direction of the trade.
// A real target list that happens to be small integers ("tp 2-3-4" on a
// sub-$10 coin) is read as offsets; nothing in the text can tell them apart.
func (e *Engine) interpretTakeProfits(window string, sig *types.ParsedSignal, commaThousands bool) ([]float64, string) {
	entry, hasEntry := sig.Entry()
	trimmed := strings.TrimSpace(window)

	if hasEntry {
		var offsets []float64
		switch {
		case strings.Contains(trimmed, "%"):
			for _, pm := range percentRe.FindAllStringSubmatch(trimmed, -1) {
				if v, ok := e.norm.Scalar(firstGroup(pm)); ok {
					offsets = append(offsets, v)
				}
			}
		default:
			offsets = relativeRun(trimmed)
		}
		if len(offsets) > 0 {
			sign := 1.0
			if sig.Side == types.SideShort {
				sign = -1.0
			}
			out := make([]float64, len(offsets))
			for i, o := range offsets {
				out[i] = round8(entry * (1 + sign*o/100))
			}
			return out, " (percent of entry)"
		}
	}
	return e.norm.AllIn(window, commaThousands), ""
}

const minRelativeRun = 3

// relativeRun returns the offsets of a window such as "1-2-3" or "1, 2, 3".
// Every token must be a whole number in 1..10 with only separators between,
// so Turkish decimals like "1,5" never qualify.
func relativeRun(window string) []float64 {
	tokens, rest := normalize.Tokens(window)
	if len(tokens) < minRelativeRun || strings.Trim(rest, " \t\n-/,") != "" {
		return nil
	}
	out := make([]float64, 0, len(tokens))
	for _, t := range tokens {
		v, err := strconv.Atoi(t)
		if err != nil || v < 1 || v > 10 {
			return nil
		}
		out = append(out, float64(v))
	}
	return out
}

func (e *Engine) stopLoss(m *message, sig *types.ParsedSignal) {
	window, ok := m.layout.window(lexicon.FieldSL)
	if !ok && !m.windowsOnly {
		if loc := lexicon.SLRe.FindStringIndex(m.folded); loc != nil {
			rest := strings.TrimLeft(m.folded[loc[1]:], " \t:")
			window, ok = cutWindow(rest, lexicon.NextKeyword(lexicon.FieldSL, rest)), true
		}
	}
	if ok {
		if vals := e.norm.AllIn(window, m.commaThousands); len(vals) > 0 {
			sig.StopLoss = types.Float(vals[0])
			sig.Notef("stop-loss: %v", vals[0])
			return
		}
	}
	sig.Notef("stop-loss not detected")
}

// cutWindow ends rest at the next field keyword or newline, whichever is first.
func cutWindow(rest string, nextKeyword int) string {
	end := len(rest)
	if nextKeyword >= 0 && nextKeyword < end {
		end = nextKeyword
	}
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && nl < end {
		end = nl
	}
	return rest[:end]
}

func stripListLabel(line string) string {
	if loc := listLabelRe.FindStringIndex(line); loc != nil {
		return strings.TrimSpace(line[loc[1]:])
	}
	return strings.TrimSpace(line)
}

func firstGroup(match []string) string {
	for _, g := range match[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
