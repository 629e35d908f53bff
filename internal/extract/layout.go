package extract

import (
	"regexp"
	"strings"

	"signal-trading-bot/internal/lexicon"
)

var (
	labelLineRe  = regexp.MustCompile(`^([\p{L}][\p{L}\d ]{0,30}?)\s*:\s*(.*)$`)
	bulletRe     = regexp.MustCompile(`^[\s\-*•>·]+`)
	trailDigitRe = regexp.MustCompile(`[\s\d]+$`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// layoutLabels maps folded line labels to the field they introduce.
var layoutLabels = map[string]lexicon.Field{
	"islem turu": lexicon.FieldSide,
	"islem tipi": lexicon.FieldSide,
	"islem":      lexicon.FieldSide,
	"pozisyon":   lexicon.FieldSide,
	"yon":        lexicon.FieldSide,
	"direction":  lexicon.FieldSide,
	"side":       lexicon.FieldSide,
	"position":   lexicon.FieldSide,
	"trade type": lexicon.FieldSide,

	"coin adi":  lexicon.FieldSymbol,
	"coin name": lexicon.FieldSymbol,
	"coin":      lexicon.FieldSymbol,
	"parite":    lexicon.FieldSymbol,
	"pair":      lexicon.FieldSymbol,
	"symbol":    lexicon.FieldSymbol,
	"sembol":    lexicon.FieldSymbol,

	"giris bolgesi": lexicon.FieldEntry,
	"giris fiyati":  lexicon.FieldEntry,
	"giris":         lexicon.FieldEntry,
	"entry zone":    lexicon.FieldEntry,
	"entry price":   lexicon.FieldEntry,
	"entry":         lexicon.FieldEntry,
	"entries":       lexicon.FieldEntry,
	"alim bolgesi":  lexicon.FieldEntry,
	"buy zone":      lexicon.FieldEntry,

	"hedefler":     lexicon.FieldTP,
	"hedef":        lexicon.FieldTP,
	"targets":      lexicon.FieldTP,
	"target":       lexicon.FieldTP,
	"take profit":  lexicon.FieldTP,
	"take profits": lexicon.FieldTP,
	"tp":           lexicon.FieldTP,
	"kar al":       lexicon.FieldTP,

	"stop loss":    lexicon.FieldSL,
	"stoploss":     lexicon.FieldSL,
	"stop":         lexicon.FieldSL,
	"zarar durdur": lexicon.FieldSL,
	"zarar kes":    lexicon.FieldSL,
	"sl":           lexicon.FieldSL,

	"kaldirac": lexicon.FieldLeverage,
	"leverage": lexicon.FieldLeverage,
	"lev":      lexicon.FieldLeverage,
}

// layout is the result of recognizing "LABEL: value" lines. Windows of
// repeated labels ("TP1: .." "TP2: ..") are joined with newlines.
type layout struct {
	windows map[lexicon.Field]string
}

func (l layout) matched() bool { return len(l.windows) >= 2 }

func (l layout) window(f lexicon.Field) (string, bool) {
	w, ok := l.windows[f]
	return w, ok
}

// recognizeLayout scans folded text line by line. Unlabeled lines directly
// after an entry or take-profit label continue that label's window, which
// covers lists such as "Targets:\n1) 375\n2) 380".
func recognizeLayout(folded string) layout {
	l := layout{windows: make(map[lexicon.Field]string)}
	var open lexicon.Field

	for _, raw := range strings.Split(folded, "\n") {
		line := bulletRe.ReplaceAllString(raw, "")
		m := labelLineRe.FindStringSubmatch(line)
		if m != nil {
			label := strings.TrimSpace(trailDigitRe.ReplaceAllString(m[1], ""))
			label = spacesRe.ReplaceAllString(label, " ")
			if f, ok := layoutLabels[label]; ok {
				l.add(f, strings.TrimSpace(m[2]))
				open = f
				continue
			}
		}
		if (open == lexicon.FieldEntry || open == lexicon.FieldTP) && startsWithNumber(line) {
			l.add(open, stripListLabel(line))
			continue
		}
		open = ""
	}
	return l
}

func (l layout) add(f lexicon.Field, value string) {
	if value == "" {
		if _, ok := l.windows[f]; !ok {
			l.windows[f] = ""
		}
		return
	}
	if prev, ok := l.windows[f]; ok && prev != "" {
		l.windows[f] = prev + "\n" + value
		return
	}
	l.windows[f] = value
}

func startsWithNumber(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && line[0] >= '0' && line[0] <= '9'
}
