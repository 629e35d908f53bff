package lexicon

import "regexp"

// All patterns match folded text (see Fold).
var (
	LongRe  = regexp.MustCompile(`\b(?:long|buy|alim|alis|al|uzun)\b`)
	ShortRe = regexp.MustCompile(`\b(?:short|sell|satis|sat|kisa)\b`)

	EntryRe = regexp.MustCompile(`\b(?:entry(?:\s*(?:zone|price|point|area))?|entries|giris(?:\s*(?:bolgesi|fiyati|araligi))?|alim(?:\s*(?:bolgesi|fiyati))?|buy(?:\s*(?:zone|area))?)\b`)
	TPRe    = regexp.MustCompile(`\b(?:tp\d*|take\s*profits?|targets?\d*|hedef(?:ler)?\d*|kar\s*al)\b`)
	SLRe    = regexp.MustCompile(`\b(?:stop\s*loss|stoploss|stop|sl|zarar\s*durdur|zarar\s*kes|zarar)\b`)
	LevRe   = regexp.MustCompile(`\b(?:leverage|lev|kaldirac)\b|\b\d{1,3}\s*x\b|\bx\s*\d{1,3}\b`)

	// LeverageValueRe captures the multiplier from "lev 10", "kaldirac: 20", "15x" or "x20".
	LeverageValueRe = regexp.MustCompile(`\b(?:leverage|lev|kaldirac)\s*:?\s*(?:x\s*)?(\d{1,3})\b|\b(\d{1,3})\s*x\b|\bx\s*(\d{1,3})\b`)

	// TakeProfitPhraseRe is "kar al" (take profit), which must not count as an "al" side keyword.
	TakeProfitPhraseRe = regexp.MustCompile(`\bkar\s*$`)
)

// Field identifies an extractable signal field.
type Field string

const (
	FieldSymbol   Field = "symbol"
	FieldSide     Field = "side"
	FieldEntry    Field = "entry"
	FieldTP       Field = "tp"
	FieldSL       Field = "sl"
	FieldLeverage Field = "leverage"
)

// Terminators lists, for each windowed field, the keywords that end its window.
// TP windows are not cut by further TP labels so "TP1 .. TP2 .." stays together.
var Terminators = map[Field][]*regexp.Regexp{
	FieldEntry: {TPRe, SLRe, LevRe},
	FieldTP:    {SLRe, EntryRe, LevRe},
	FieldSL:    {TPRe, EntryRe, LevRe},
}

// NextKeyword returns the offset of the earliest terminator of f in text, or -1.
func NextKeyword(f Field, text string) int {
	first := -1
	for _, re := range Terminators[f] {
		if loc := re.FindStringIndex(text); loc != nil && (first < 0 || loc[0] < first) {
			first = loc[0]
		}
	}
	return first
}
