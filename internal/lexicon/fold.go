// Package lexicon holds the text primitives shared by the parsing tiers:
// Turkish-aware case folding, field keyword patterns, locale detection and
// message cleanup.
package lexicon

import (
	"strings"
	"unicode"
)

var turkishFold = map[rune]rune{
	'İ': 'i', 'I': 'i', 'ı': 'i',
	'Ş': 's', 'ş': 's',
	'Ç': 'c', 'ç': 'c',
	'Ğ': 'g', 'ğ': 'g',
	'Ö': 'o', 'ö': 'o',
	'Ü': 'u', 'ü': 'u',
}

// Fold lower-cases text and maps Turkish letters to their ASCII base so that
// "GİRİŞ", "Giriş" and "giris" compare equal. Keyword patterns in this
// package are written against folded text.
func Fold(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '̇' { // combining dot left behind by some İ encodings
			continue
		}
		if f, ok := turkishFold[r]; ok {
			b.WriteRune(f)
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
