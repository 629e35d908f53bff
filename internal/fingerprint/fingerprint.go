// Package fingerprint derives a number-independent structural description of
// a signal message and hashes it, so messages that differ only in prices map
// to the same cache key.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"signal-trading-bot/internal/lexicon"
	"signal-trading-bot/internal/types"
)

type Position string

const (
	PositionStart  Position = "start"
	PositionMiddle Position = "middle"
	PositionEnd    Position = "end"
	PositionNone   Position = "none"
)

type Shape string

const (
	ShapeCompact   Shape = "compact"
	ShapeMultiline Shape = "multiline"
	ShapeLabeled   Shape = "labeled"
)

const (
	placeholder  = "NUM"
	prefixLength = 100
)

var (
	numberRe      = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
	punctRe       = regexp.MustCompile(`[^\p{L}\p{N}_\s.,:/\-]`)
	spaceRe       = regexp.MustCompile(`\s+`)
	labeledLineRe = regexp.MustCompile(`^[\p{L}][\p{L} ]{1,30}:\s*\S`)
)

// Fingerprint is recomputed per message and never stored; only its hash is.
type Fingerprint struct {
	HasEntryKeyword    bool         `json:"has_entry_kw"`
	HasTPKeyword       bool         `json:"has_tp_kw"`
	HasSLKeyword       bool         `json:"has_sl_kw"`
	HasLeverageKeyword bool         `json:"has_leverage_kw"`
	EntryPosition      Position     `json:"entry_keyword_position"`
	DigitTokenCount    int          `json:"digit_token_count"`
	Shape              Shape        `json:"format_shape"`
	Language           types.Locale `json:"language"`
}

// Of computes the fingerprint of a cleaned message. Each field is an
// independent check over the folded text.
func Of(text string) Fingerprint {
	folded := lexicon.Fold(text)
	return Fingerprint{
		HasEntryKeyword:    lexicon.EntryRe.MatchString(folded),
		HasTPKeyword:       lexicon.TPRe.MatchString(folded),
		HasSLKeyword:       lexicon.SLRe.MatchString(folded),
		HasLeverageKeyword: lexicon.LevRe.MatchString(folded),
		EntryPosition:      entryPosition(folded),
		DigitTokenCount:    len(numberRe.FindAllStringIndex(folded, -1)),
		Shape:              shape(text),
		Language:           lexicon.DetectLocale(text),
	}
}

// entryPosition is measured on the placeholder text so that longer or
// shorter prices do not move the keyword between thirds.
func entryPosition(folded string) Position {
	skeleton := numberRe.ReplaceAllString(folded, placeholder)
	loc := lexicon.EntryRe.FindStringIndex(skeleton)
	if loc == nil {
		return PositionNone
	}
	n := len(skeleton)
	switch {
	case loc[0]*3 < n:
		return PositionStart
	case loc[0]*3 < 2*n:
		return PositionMiddle
	default:
		return PositionEnd
	}
}

func shape(text string) Shape {
	lines := 0
	labeled := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines++
		if labeledLineRe.MatchString(line) {
			labeled++
		}
	}
	switch {
	case labeled >= 2:
		return ShapeLabeled
	case lines > 1:
		return ShapeMultiline
	default:
		return ShapeCompact
	}
}

// Skeleton is the text with every number replaced by a placeholder, stray
// punctuation removed and whitespace collapsed.
func Skeleton(text string) string {
	s := numberRe.ReplaceAllString(lexicon.Fold(text), placeholder)
	s = punctRe.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Hash is the structure hash of text under fingerprint fp.
func Hash(text string, fp Fingerprint) string {
	prefix := []rune(Skeleton(text))
	if len(prefix) > prefixLength {
		prefix = prefix[:prefixLength]
	}
	key := fmt.Sprintf("%s|%s|%s|%s|%d", string(prefix), fp.Shape, fp.Language, fp.EntryPosition, fp.DigitTokenCount)
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Compute returns the fingerprint and structure hash together.
func Compute(text string) (Fingerprint, string) {
	fp := Of(text)
	return fp, Hash(text, fp)
}
