package lexicon

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	urlRe        = regexp.MustCompile(`https?://\S+`)
	hspaceRe     = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLinesRe = regexp.MustCompile(`\n{2,}`)
	htmlTagRe    = regexp.MustCompile(`(?i)<\s*/?\s*[a-z][^>]*>|&[a-z]+;|&#\d+;`)
)

var punctuationFold = strings.NewReplacer(
	"–", "-", "—", "-", "−", "-", "‒", "-",
	"’", "'", "‘", "'", "“", `"`, "”", `"`,
	"：", ":", "，", ",",
)

// Clean prepares a raw channel message for parsing: Telegram HTML exports are
// reduced to text, URLs and pictographs are dropped, dash and quote variants
// are folded to ASCII and horizontal whitespace is collapsed. Line structure
// is preserved because the labeled-layout recognizer works line by line.
func Clean(raw string) string {
	text := raw
	if htmlTagRe.MatchString(text) {
		text = htmlToText(text)
	}

	text = urlRe.ReplaceAllString(text, " ")
	text = punctuationFold.Replace(text)
	text = strings.Map(func(r rune) rune {
		if isPictograph(r) {
			return ' '
		}
		if r == '\r' {
			return -1
		}
		return r
	}, text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(hspaceRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return doc.Text()
}

func isPictograph(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoji blocks
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r == 0x200D, r == 0x20E3, r == 0xFEFF, r >= 0x200B && r <= 0x200F, r == 0x2060:
		return true
	}
	return unicode.Is(unicode.So, r) && r != '%'
}
