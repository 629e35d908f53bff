// Package whitelist is the adaptive fast-path cache: it remembers the
// extraction of message structures that parsed well and serves them again
// once a structure has been seen often enough to be trusted.
package whitelist

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"signal-trading-bot/internal/fingerprint"
	"signal-trading-bot/internal/logger"
)

// Cache is safe for concurrent use. Lookups share a read lock; learning,
// usage recording, eviction and decay take the write lock.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	policy  Policy
	store   Store
	now     func() time.Time

	dirty    int
	closed   bool // set by Close; no background flush starts after it
	flushing atomic.Bool
	wg       sync.WaitGroup

	hits    atomic.Int64
	misses  atomic.Int64
	learned atomic.Int64
	evicted atomic.Int64
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds an empty cache. A nil store keeps everything in memory.
func New(policy Policy, store Store, opts ...Option) *Cache {
	if store == nil {
		store = &MemoryStore{}
	}
	c := &Cache{
		entries: make(map[string]*Entry),
		policy:  policy,
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Policy() Policy { return c.policy }

// Load replaces the in-memory entries with the persisted document. A missing
// document is not an error. On failure the cache keeps running empty.
func (c *Cache) Load(ctx context.Context) error {
	doc, err := c.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		logger.Info(ctx, "No persisted whitelist, starting empty")
		return nil
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load whitelist, starting empty", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry, len(doc.Entries))
	for hash, e := range doc.Entries {
		e := e
		if e.StructureHash == "" {
			e.StructureHash = hash
		}
		c.entries[hash] = &e
	}
	logger.Info(ctx, "Whitelist loaded", "entries", len(c.entries))
	return nil
}

// Lookup returns the entry for text's structure when it is trusted enough to
// serve. It counts a hit or a miss but does not modify the entry.
func (c *Cache) Lookup(text string) (Entry, bool) {
	_, hash := fingerprint.Compute(text)
	return c.LookupHash(hash)
}

func (c *Cache) LookupHash(hash string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[hash]
	if ok && e.Confidence >= c.policy.ServeThreshold {
		out := e.clone()
		c.mu.RUnlock()
		c.hits.Add(1)
		return out, true
	}
	c.mu.RUnlock()
	c.misses.Add(1)
	return Entry{}, false
}

// Get returns an entry regardless of confidence and without counting.
func (c *Cache) Get(hash string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[hash]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// RecordUsage credits a served entry: one more success and a small
// confidence bump.
func (c *Cache) RecordUsage(ctx context.Context, hash string) {
	c.mu.Lock()
	e, ok := c.entries[hash]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.SuccessCount++
	e.Confidence = bump(e.Confidence, c.policy.HitIncrement)
	e.LastSeen = c.now()
	flush := c.markDirtyLocked()
	c.mu.Unlock()

	if flush {
		c.flushAsync(ctx)
	}
}

// Learn records a successful extraction. A new structure starts on
// probation below the serve threshold; each repeat raises its confidence.
func (c *Cache) Learn(ctx context.Context, obs Observation) Entry {
	fp, hash := fingerprint.Compute(obs.Text)
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[hash]
	if ok {
		e.SuccessCount++
		e.Confidence = bump(e.Confidence, c.policy.LearnIncrement)
		e.LastSeen = now
		e.CachedEntries = append([]float64(nil), obs.Entries...)
		e.CachedTakeProfits = append([]float64(nil), obs.TakeProfits...)
		e.CachedStopLoss = copyFloat(obs.StopLoss)
		e.CachedLeverage = obs.Leverage
	} else {
		e = &Entry{
			StructureHash:     hash,
			Symbol:            obs.Symbol,
			Fingerprint:       fp,
			SuccessCount:      1,
			Confidence:        round4(c.policy.ProbationSeed),
			FirstSeen:         now,
			LastSeen:          now,
			Language:          obs.Language,
			FormatShape:       fp.Shape,
			CachedEntries:     append([]float64(nil), obs.Entries...),
			CachedTakeProfits: append([]float64(nil), obs.TakeProfits...),
			CachedStopLoss:    copyFloat(obs.StopLoss),
			CachedLeverage:    obs.Leverage,
		}
		c.entries[hash] = e
		c.learned.Add(1)
	}
	out := e.clone()

	if len(c.entries) > c.policy.Capacity {
		c.evictLocked(ctx)
	}
	flush := c.markDirtyLocked()
	c.mu.Unlock()

	logger.Debug(ctx, "Whitelist learned pattern",
		"hash", hash,
		"symbol", out.Symbol,
		"confidence", out.Confidence,
		"success_count", out.SuccessCount,
	)

	if flush {
		c.flushAsync(ctx)
	}
	return out
}

func (c *Cache) markDirtyLocked() bool {
	c.dirty++
	return c.policy.FlushEvery > 0 && c.dirty >= c.policy.FlushEvery
}

// evictLocked drops the oldest, least trusted share of entries.
func (c *Cache) evictLocked(ctx context.Context) {
	ranked := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		ranked = append(ranked, e)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].LastSeen.Equal(ranked[j].LastSeen) {
			return ranked[i].LastSeen.Before(ranked[j].LastSeen)
		}
		return ranked[i].Confidence < ranked[j].Confidence
	})

	n := int(float64(len(ranked)) * c.policy.EvictFraction)
	if n < 1 {
		n = 1
	}
	for _, e := range ranked[:n] {
		delete(c.entries, e.StructureHash)
	}
	c.evicted.Add(int64(n))
	logger.Info(ctx, "Whitelist evicted stale patterns", "removed", n, "remaining", len(c.entries))
}

// decayLocked demotes entries not seen for longer than StaleAfter. Staleness
// already charged is remembered in LastDecay so repeated flushes do not
// compound the penalty.
func (c *Cache) decayLocked(now time.Time) int {
	decayed := 0
	for _, e := range c.entries {
		staleFrom := e.LastSeen.Add(c.policy.StaleAfter)
		if !now.After(staleFrom) {
			continue
		}
		from := staleFrom
		if e.LastDecay.After(from) {
			from = e.LastDecay
		}
		periods := now.Sub(from).Hours() / c.policy.DecayPeriod.Hours()
		if periods <= 0 {
			continue
		}
		e.Confidence = round4(e.Confidence * math.Pow(c.policy.DecayRate, periods))
		e.LastDecay = now
		decayed++
	}
	return decayed
}

// Flush applies decay and writes the whole cache to the store.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	now := c.now()
	decayed := c.decayLocked(now)
	doc := &Document{
		Version: documentVersion,
		SavedAt: now,
		Entries: make(map[string]Entry, len(c.entries)),
	}
	for hash, e := range c.entries {
		doc.Entries[hash] = e.clone()
	}
	c.dirty = 0
	c.mu.Unlock()

	if err := c.store.Save(ctx, doc); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist whitelist", err, "entries", len(doc.Entries))
		return err
	}
	logger.Debug(ctx, "Whitelist flushed", "entries", len(doc.Entries), "decayed", decayed)
	return nil
}

func (c *Cache) flushAsync(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.flushing.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.flushing.Store(false)
		_ = c.Flush(context.WithoutCancel(ctx))
	}()
}

// Close stops background flushes, waits for a running one and writes a final
// snapshot. Mutations after Close are kept in memory only until the next
// explicit Flush.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
	return c.Flush(ctx)
}

func (c *Cache) Remove(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[hash]; !ok {
		return false
	}
	delete(c.entries, hash)
	c.dirty++
	return true
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.dirty++
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// PatternStat summarises one entry for reporting.
type PatternStat struct {
	Hash         string  `json:"hash"`
	Symbol       string  `json:"symbol"`
	SuccessCount int     `json:"success_count"`
	Confidence   float64 `json:"confidence"`
}

type Stats struct {
	Entries       int           `json:"entries"`
	Trusted       int           `json:"trusted"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	HitRate       float64       `json:"hit_rate"`
	Learned       int64         `json:"learned"`
	Evicted       int64         `json:"evicted"`
	AvgConfidence float64       `json:"avg_confidence"`
	TopPatterns   []PatternStat `json:"top_patterns"`
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	top := make([]PatternStat, 0, len(c.entries))
	trusted := 0
	sum := 0.0
	for _, e := range c.entries {
		sum += e.Confidence
		if e.Confidence >= c.policy.ServeThreshold {
			trusted++
		}
		top = append(top, PatternStat{Hash: e.StructureHash, Symbol: e.Symbol, SuccessCount: e.SuccessCount, Confidence: e.Confidence})
	}
	n := len(c.entries)
	c.mu.RUnlock()

	sort.Slice(top, func(i, j int) bool {
		if top[i].SuccessCount != top[j].SuccessCount {
			return top[i].SuccessCount > top[j].SuccessCount
		}
		return top[i].Hash < top[j].Hash
	})
	if len(top) > 10 {
		top = top[:10]
	}

	st := Stats{
		Entries:     n,
		Trusted:     trusted,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Learned:     c.learned.Load(),
		Evicted:     c.evicted.Load(),
		TopPatterns: top,
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	if n > 0 {
		st.AvgConfidence = sum / float64(n)
	}
	return st
}

// bump raises confidence by inc, saturating at 1. Values are kept at four
// decimals so repeated increments land exactly on thresholds.
func bump(confidence, inc float64) float64 {
	return math.Min(1.0, round4(confidence+inc))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
