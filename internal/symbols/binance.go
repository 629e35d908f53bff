package symbols

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/logger"
)

const DefaultTTL = 24 * time.Hour

// Fetcher lists the currently tradeable USDT pairs.
type Fetcher interface {
	FetchSymbols(ctx context.Context) ([]string, error)
}

// ExchangeFetcher reads spot exchangeInfo from Binance. No credentials are
// needed for this endpoint.
type ExchangeFetcher struct {
	client *binance.Client
}

func NewExchangeFetcher(baseURL string) *ExchangeFetcher {
	c := binance.NewClient("", "")
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return &ExchangeFetcher{client: c}
}

func (f *ExchangeFetcher) FetchSymbols(ctx context.Context) ([]string, error) {
	info, err := f.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance exchange info: %w", err)
	}
	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && strings.HasSuffix(s.Symbol, "USDT") {
			out = append(out, s.Symbol)
		}
	}
	return out, nil
}

// Prices returns last spot prices for symbols from the ticker price
// endpoint. Unknown symbols and unparsable prices are left out.
func (f *ExchangeFetcher) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	list, err := f.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker price: %w", err)
	}
	out := make(map[string]float64, len(symbols))
	for _, p := range list {
		if !want[p.Symbol] {
			continue
		}
		if v, err := strconv.ParseFloat(p.Price, 64); err == nil {
			out[p.Symbol] = v
		}
	}
	return out, nil
}

// cacheDocument is the on-disk form of the symbol set.
type cacheDocument struct {
	Symbols    []string  `json:"symbols"`
	LastUpdate time.Time `json:"last_update"`
}

// Oracle answers Exists from a periodically refreshed symbol set. The set is
// mirrored to a JSON file so restarts work without network access.
type Oracle struct {
	fetcher   Fetcher
	cacheFile string
	ttl       time.Duration
	now       func() time.Time

	mu         sync.RWMutex
	set        map[string]struct{}
	lastUpdate time.Time
}

var _ interfaces.SymbolOracle = (*Oracle)(nil)

type Option func(*Oracle)

func WithCacheFile(path string) Option { return func(o *Oracle) { o.cacheFile = path } }

func WithTTL(ttl time.Duration) Option { return func(o *Oracle) { o.ttl = ttl } }

func WithClock(now func() time.Time) Option { return func(o *Oracle) { o.now = now } }

func NewOracle(fetcher Fetcher, opts ...Option) *Oracle {
	o := &Oracle{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		set:     map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load reads the file cache and refreshes from the exchange when the cached
// set is missing or older than the TTL. A failed refresh keeps whatever was
// cached and is only logged.
func (o *Oracle) Load(ctx context.Context) {
	if err := o.readCache(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn(ctx, "Symbol cache unreadable", "path", o.cacheFile, "error", err.Error())
	}
	if !o.Stale() {
		logger.Info(ctx, "Symbol set loaded from cache", "symbols", o.Len(), "last_update", o.LastUpdate())
		return
	}
	if err := o.Refresh(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Symbol refresh failed, using cached set", err, "symbols", o.Len())
	}
}

// Refresh replaces the set with a fresh exchange listing.
func (o *Oracle) Refresh(ctx context.Context) error {
	syms, err := o.fetcher.FetchSymbols(ctx)
	if err != nil {
		return err
	}
	if len(syms) == 0 {
		return errors.New("exchange returned no symbols")
	}
	set := make(map[string]struct{}, len(syms))
	for _, s := range syms {
		set[strings.ToUpper(s)] = struct{}{}
	}

	o.mu.Lock()
	o.set = set
	o.lastUpdate = o.now()
	o.mu.Unlock()

	logger.Info(ctx, "Symbol set refreshed", "symbols", len(set))
	if err := o.writeCache(); err != nil {
		logger.Warn(ctx, "Failed to write symbol cache", "path", o.cacheFile, "error", err.Error())
	}
	return nil
}

// RefreshIfStale is the scheduled entry point.
func (o *Oracle) RefreshIfStale(ctx context.Context) {
	if !o.Stale() {
		return
	}
	if err := o.Refresh(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Scheduled symbol refresh failed", err)
	}
}

// Exists reports whether symbol is listed. With an empty set (never loaded
// and exchange unreachable) every candidate is accepted.
func (o *Oracle) Exists(symbol string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.set) == 0 {
		return true
	}
	_, ok := o.set[strings.ToUpper(symbol)]
	return ok
}

func (o *Oracle) Stale() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.set) == 0 || o.now().Sub(o.lastUpdate) > o.ttl
}

func (o *Oracle) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.set)
}

func (o *Oracle) LastUpdate() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastUpdate
}

func (o *Oracle) readCache() error {
	if o.cacheFile == "" {
		return os.ErrNotExist
	}
	data, err := os.ReadFile(o.cacheFile)
	if err != nil {
		return err
	}
	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode %s: %w", o.cacheFile, err)
	}
	set := make(map[string]struct{}, len(doc.Symbols))
	for _, s := range doc.Symbols {
		set[strings.ToUpper(s)] = struct{}{}
	}

	o.mu.Lock()
	o.set = set
	o.lastUpdate = doc.LastUpdate
	o.mu.Unlock()
	return nil
}

func (o *Oracle) writeCache() error {
	if o.cacheFile == "" {
		return nil
	}
	o.mu.RLock()
	doc := cacheDocument{Symbols: make([]string, 0, len(o.set)), LastUpdate: o.lastUpdate}
	for s := range o.set {
		doc.Symbols = append(doc.Symbols, s)
	}
	o.mu.RUnlock()
	sort.Strings(doc.Symbols)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(o.cacheFile), 0755); err != nil {
		return err
	}
	tmp := o.cacheFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, o.cacheFile)
}
