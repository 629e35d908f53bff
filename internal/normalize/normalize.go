// Package normalize turns locale-ambiguous numeric tokens from signal
// messages ("112,5k", "0,125", "1.234,56", "112 bin") into float64 values.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultNoiseFloor rejects magnitudes that only malformed tokens produce.
// It is a noise filter, not a minimum price: set Normalizer.NoiseFloor to 0
// to accept every positive value.
const DefaultNoiseFloor = 1e-6

var (
	suffixRe  = regexp.MustCompile(`(?i)(kilo|bin|k)$`)
	plainRe   = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)
	groupedRe = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)

	// number, then an optional multiplier suffix that must itself end at a word boundary
	tokenRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)(?:\s*(kilo|bin|k)(?:[^\p{L}\p{N}]|$))?`)

	commaRunRe   = regexp.MustCompile(`\d+,\d+(?:\s*[-–—]\s*\d+,\d+)+`)
	commaTokenRe = regexp.MustCompile(`(\d+),(\d+)`)

	labelBeforeRe = regexp.MustCompile(`(?i)(?:tp|hedef|target|sl|stop)\s*$`)
	labelAfterRe  = regexp.MustCompile(`^\s*(?:[:)]|\d)`)
)

// Normalizer holds the tunable noise floor. The zero value accepts every
// positive number; use New for the default floor.
type Normalizer struct {
	NoiseFloor float64
}

func New() *Normalizer {
	return &Normalizer{NoiseFloor: DefaultNoiseFloor}
}

var std = New()

// Scalar parses a single token with the default noise floor.
func Scalar(token string) (float64, bool) {
	return std.Scalar(token)
}

// All extracts every price-like number from text with the default noise floor.
func All(text string) []float64 {
	return std.All(text)
}

// Scalar parses one token. When both ',' and '.' appear the later one is the
// decimal point; a lone ',' is a decimal comma; repeated separators of one kind
// are thousands grouping.
func (n *Normalizer) Scalar(token string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '\'', r == '"', r == '’', r == '‘', r == '“', r == '”':
			return -1
		}
		return r
	}, token)
	if s == "" {
		return 0, false
	}

	mult := 1.0
	if loc := suffixRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
		mult = 1000
	}
	if s == "" {
		return 0, false
	}

	s = canonicalSeparators(s)
	if !plainRe.MatchString(s) {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	v *= mult
	if math.Abs(v) < n.NoiseFloor || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func canonicalSeparators(s string) string {
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")

	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// CommaThousands reports whether text contains a run of two or more
// dash-separated "ddd,ddd" groups, e.g. "113,500 - 114,000". Such a run means
// commas in this message group thousands rather than mark decimals. The
// answer depends on the whole message, so callers compute it once and pass
// it into AllIn for each window.
func CommaThousands(text string) bool {
	for _, run := range commaRunRe.FindAllString(text, -1) {
		streak := 0
		for _, m := range commaTokenRe.FindAllStringSubmatch(run, -1) {
			left, right := m[1], m[2]
			if len(left) <= 3 && left != "0" && len(right) == 3 {
				streak++
				if streak >= 2 {
					return true
				}
				continue
			}
			streak = 0
		}
	}
	return false
}

// All extracts numbers from text, deciding comma semantics from text itself.
func (n *Normalizer) All(text string) []float64 {
	return n.AllIn(text, CommaThousands(text))
}

// AllIn extracts numbers from a window of a larger message. commaThousands is
// the message-level verdict from CommaThousands. Level labels such as the "2"
// in "Hedef 2: 0.5" are skipped, as are numbers glued to letters ("tp1", "15x").
func (n *Normalizer) AllIn(window string, commaThousands bool) []float64 {
	var out []float64
	for _, m := range tokenRe.FindAllStringSubmatchIndex(window, -1) {
		numStart, numEnd := m[2], m[3]
		hasSuffix := m[4] >= 0

		if r, _ := utf8.DecodeLastRuneInString(window[:numStart]); numStart > 0 && isWordRune(r) {
			continue
		}
		if !hasSuffix && numEnd < len(window) {
			if r, _ := utf8.DecodeRuneInString(window[numEnd:]); isWordRune(r) {
				continue
			}
		}

		num := window[numStart:numEnd]
		if !hasSuffix && isLevelLabel(window, numStart, numEnd) {
			continue
		}
		if commaThousands && !hasSuffix && groupedRe.MatchString(num) {
			num = strings.ReplaceAll(num, ",", "")
		}

		token := num
		if hasSuffix {
			token += window[m[4]:m[5]]
		}
		if v, ok := n.Scalar(token); ok {
			out = append(out, v)
		}
	}
	return out
}

// Tokens returns the raw numeric tokens of text, multiplier suffix included,
// and the text left once they are cut out. A decimal such as "1,5" stays one
// token.
func Tokens(text string) ([]string, string) {
	var (
		tokens []string
		rest   strings.Builder
		last   int
	)
	for _, m := range tokenRe.FindAllStringIndex(text, -1) {
		rest.WriteString(text[last:m[0]])
		rest.WriteByte(' ')
		tokens = append(tokens, strings.TrimSpace(text[m[0]:m[1]]))
		last = m[1]
	}
	rest.WriteString(text[last:])
	return tokens, rest.String()
}

func isLevelLabel(text string, start, end int) bool {
	num := text[start:end]
	if len(num) > 2 || strings.ContainsAny(num, ".,") {
		return false
	}
	return labelBeforeRe.MatchString(text[:start]) && labelAfterRe.MatchString(text[end:])
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
