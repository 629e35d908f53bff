package extract

import (
	"regexp"
	"strings"

	"signal-trading-bot/internal/lexicon"
	"signal-trading-bot/internal/types"
)

var (
	hashtagRe   = regexp.MustCompile(`#([a-z0-9]{2,15})\b`)
	candidateRe = regexp.MustCompile(`\b(1000[a-z]{2,12}|[a-z][a-z0-9]{1,14})\b`)
	quoteRe     = regexp.MustCompile(`(?:usdt|busd|usdc|usd)$`)
	labelTokRe  = regexp.MustCompile(`^(?:tp|sl|hedef|target|x)\d+$`)
	firstTokRe  = regexp.MustCompile(`#?([a-z0-9]{2,15})`)
)

// Words that look like tickers but are trading jargon, quote currencies,
// exchanges, marketing or Turkish/English filler, plus a few delisted names.
var rejectWords = []string{
	"usdt", "usd", "busd", "usdc", "dai", "tusd",

	"leverage", "target", "targets", "cross", "isolated", "tp", "sl", "lev",
	"take", "profit", "profits", "loss", "stop", "stoploss", "entry", "entries",
	"zone", "price", "long", "short", "buy", "sell", "sale", "coin", "pair",
	"symbol", "side", "direction", "position", "type",

	"bitcoin", "ethereum", "solana", "binancecoin", "cardano", "ripple",
	"polkadot", "dogecoin", "shiba", "avalanche",

	"binance", "mexc", "kucoin", "bybit", "okx", "kraken", "coinbase", "huobi",
	"gateio", "bitget",

	"signal", "signals", "pump", "pumps", "moon", "rocket", "gem", "gems",
	"group", "channel", "vip", "free", "join",

	"market", "markets", "trading", "trader", "trade", "trend", "order",
	"orders", "limit", "swing", "spot", "futures", "going", "coming", "next",
	"new", "hot", "top", "the", "and", "for", "with", "this", "that", "from",
	"have", "what", "when", "now", "update",

	"yeni", "sinyal", "hedef", "hedefler", "hedey", "giris", "bolgesi",
	"fiyati", "zarar", "durdur", "kes", "gidiyor", "geliyor", "siparis",
	"piyasa", "alim", "alis", "satim", "satis", "al", "sat", "uzun", "kisa",
	"kar", "kaldirac", "islem", "turu", "tipi", "adi", "parite", "sembol",
	"pozisyon", "yon", "vadeli", "bin", "ve", "ile", "icin", "bu",

	"kamikaze", "vine", "zora",
}

func defaultRejectWords() map[string]struct{} {
	m := make(map[string]struct{}, len(rejectWords))
	for _, w := range rejectWords {
		m[w] = struct{}{}
	}
	return m
}

// symbol picks the first acceptable candidate, hashtags first.
func (e *Engine) symbol(m *message, sig *types.ParsedSignal) {
	if w, ok := m.layout.window(lexicon.FieldSymbol); ok {
		if s, ok := e.symbolFromWindow(w, sig); ok {
			sig.Symbol = s
			sig.Notef("symbol: %s (label)", s)
			return
		}
	}

	var candidates []string
	for _, c := range hashtagRe.FindAllStringSubmatch(m.folded, -1) {
		candidates = append(candidates, c[1])
	}
	for _, c := range candidateRe.FindAllStringSubmatch(m.folded, -1) {
		candidates = append(candidates, c[1])
	}

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if s, ok := e.acceptSymbol(c, sig); ok {
			sig.Symbol = s
			sig.Notef("symbol: %s", s)
			return
		}
	}
	sig.Notef("symbol not detected")
}

func (e *Engine) symbolFromWindow(window string, sig *types.ParsedSignal) (string, bool) {
	m := firstTokRe.FindStringSubmatch(window)
	if m == nil {
		return "", false
	}
	return e.acceptSymbol(m[1], sig)
}

// acceptSymbol strips the quote suffix, applies the reject list to the base
// and confirms the USDT pair with the oracle.
func (e *Engine) acceptSymbol(candidate string, sig *types.ParsedSignal) (string, bool) {
	if labelTokRe.MatchString(candidate) {
		return "", false
	}
	base := quoteRe.ReplaceAllString(candidate, "")
	if len(base) < 2 || isDigits(base) {
		return "", false
	}
	if _, bad := e.reject[base]; bad {
		if base != candidate {
			sig.Notef("symbol rejected: %s", strings.ToUpper(candidate))
		}
		return "", false
	}
	symbol := strings.ToUpper(base) + "USDT"
	if e.oracle != nil && !e.oracle.Exists(symbol) {
		if base != candidate {
			sig.Notef("symbol not listed: %s", symbol)
		}
		return "", false
	}
	return symbol, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
