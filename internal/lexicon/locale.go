package lexicon

import (
	"regexp"
	"strings"

	"signal-trading-bot/internal/types"
)

var (
	trMarkersRe = regexp.MustCompile(`\b(?:giris|alim|hedef\w*|zarar|durdur|kaldirac|bin|islem|bolgesi|satis|yukselis|dusus)\b`)
	enMarkersRe = regexp.MustCompile(`\b(?:entry|take|profit|stop|loss|leverage|targets?|tp\d*|sl)\b`)
)

const turkishLetters = "çğıöşüÇĞİÖŞÜ"

// DetectLocale classifies a message as Turkish, English, both, or neither.
func DetectLocale(text string) types.Locale {
	folded := Fold(text)
	hasTR := trMarkersRe.MatchString(folded) || strings.ContainsAny(text, turkishLetters)
	hasEN := enMarkersRe.MatchString(folded)

	switch {
	case hasTR && hasEN:
		return types.LocaleMixed
	case hasTR:
		return types.LocaleTR
	case hasEN:
		return types.LocaleEN
	default:
		return types.LocaleUnknown
	}
}
