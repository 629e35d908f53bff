package whitelist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trading-bot/internal/fingerprint"
	"signal-trading-bot/internal/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func obs(text string) Observation {
	return Observation{
		Text:        text,
		Symbol:      "BTCUSDT",
		Entries:     []float64{50000},
		TakeProfits: []float64{52000},
		StopLoss:    types.Float(49000),
		Leverage:    10,
		Language:    types.LocaleEN,
	}
}

func TestProbationCrossover(t *testing.T) {
	ctx := context.Background()
	c := New(DefaultPolicy(), nil)
	text := "BTC long entry 50000 tp 52000 sl 49000 10x"

	calls := 0
	for {
		calls++
		c.Learn(ctx, obs(text))
		if _, ok := c.Lookup(text); ok {
			break
		}
		require.Less(t, calls, 10, "lookup never succeeded")
	}

	assert.Equal(t, 3, calls)
	e, ok := c.Lookup("BTC long entry 51000 tp 53000 sl 50500 10x")
	require.True(t, ok, "structurally identical text must hit")
	assert.Equal(t, 0.7, e.Confidence)
	assert.Equal(t, 3, e.SuccessCount)
}

func TestProbationMechanismIsParametric(t *testing.T) {
	tests := []struct {
		seed, inc, threshold float64
		want                 int
	}{
		{0.6, 0.05, 0.7, 3},
		{0.5, 0.1, 0.7, 3},
		{0.7, 0.05, 0.7, 1},
		{0.2, 0.2, 0.9, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("seed=%.2f inc=%.2f thr=%.2f", tt.seed, tt.inc, tt.threshold), func(t *testing.T) {
			p := DefaultPolicy()
			p.ProbationSeed, p.LearnIncrement, p.ServeThreshold = tt.seed, tt.inc, tt.threshold
			c := New(p, nil)
			text := "ETH short entry 3000 tp 2900"

			calls := 0
			for calls < 20 {
				calls++
				c.Learn(context.Background(), obs(text))
				if _, ok := c.Lookup(text); ok {
					break
				}
			}
			assert.Equal(t, tt.want, calls)
		})
	}
}

func TestLookupDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	c := New(DefaultPolicy(), nil)
	text := "SOL long entry 100 tp 110"
	for i := 0; i < 3; i++ {
		c.Learn(ctx, obs(text))
	}

	first, ok := c.Lookup(text)
	require.True(t, ok)
	second, ok := c.Lookup(text)
	require.True(t, ok)
	assert.Equal(t, first.SuccessCount, second.SuccessCount)
	assert.Equal(t, first.Confidence, second.Confidence)

	c.RecordUsage(ctx, first.StructureHash)
	after, _ := c.Get(first.StructureHash)
	assert.Equal(t, first.SuccessCount+1, after.SuccessCount)
	assert.InDelta(t, first.Confidence+0.01, after.Confidence, 1e-9)

	_, ok = c.Lookup("unrelated text")
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 1e-9)
}

func TestConfidenceSaturates(t *testing.T) {
	ctx := context.Background()
	c := New(DefaultPolicy(), nil)
	text := "XRP long entry 0.5 tp 0.6"
	var e Entry
	for i := 0; i < 20; i++ {
		e = c.Learn(ctx, obs(text))
	}
	assert.Equal(t, 1.0, e.Confidence)
	c.RecordUsage(ctx, e.StructureHash)
	got, _ := c.Get(e.StructureHash)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestEvictionPrefersOldAndUntrusted(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p := DefaultPolicy()
	p.Capacity = 10
	p.EvictFraction = 0.2
	p.FlushEvery = 0
	c := New(p, nil, WithClock(clock.Now))

	texts := make([]string, 0, 11)
	for i := 0; i < 11; i++ {
		texts = append(texts, fmt.Sprintf("COIN%c long entry 1 tp 2", 'A'+i))
	}

	// A and B share the oldest timestamp; B is trusted more
	c.Learn(ctx, obs(texts[0]))
	c.Learn(ctx, obs(texts[1]))
	c.Learn(ctx, obs(texts[1]))
	for i := 2; i < 11; i++ {
		clock.Advance(time.Minute)
		c.Learn(ctx, obs(texts[i]))
	}

	// 11 > 10 triggers eviction of int(11*0.2)=2 entries
	assert.Equal(t, 9, c.Len())
	_, hashA := fingerprint.Compute(texts[0])
	_, hashB := fingerprint.Compute(texts[1])
	_, hashC := fingerprint.Compute(texts[2])
	_, okA := c.Get(hashA)
	_, okB := c.Get(hashB)
	_, okC := c.Get(hashC)
	assert.False(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, int64(2), c.Stats().Evicted)
}

func TestEvictionTieBreaksOnConfidence(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p := DefaultPolicy()
	p.Capacity = 2
	p.EvictFraction = 0.1
	p.FlushEvery = 0
	c := New(p, nil, WithClock(clock.Now))

	weak := "AAA long entry 1 tp 2"
	strong := "BBB long entry 1 tp 2"
	c.Learn(ctx, obs(strong))
	c.Learn(ctx, obs(strong))
	c.Learn(ctx, obs(weak))
	clock.Advance(time.Minute)
	c.Learn(ctx, obs("CCC long entry 1 tp 2"))

	_, weakHash := fingerprint.Compute(weak)
	_, strongHash := fingerprint.Compute(strong)
	_, okWeak := c.Get(weakHash)
	_, okStrong := c.Get(strongHash)
	assert.False(t, okWeak)
	assert.True(t, okStrong)
}

func TestDecayDemotesStaleEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p := DefaultPolicy()
	p.FlushEvery = 0
	c := New(p, nil, WithClock(clock.Now))

	text := "ADA long entry 0.5 tp 0.6"
	var e Entry
	for i := 0; i < 3; i++ {
		e = c.Learn(ctx, obs(text))
	}
	require.Equal(t, 0.7, e.Confidence)

	clock.Advance(29 * 24 * time.Hour)
	require.NoError(t, c.Flush(ctx))
	got, _ := c.Get(e.StructureHash)
	assert.Equal(t, 0.7, got.Confidence, "fresh entries do not decay")

	// two weeks past the staleness window
	clock.Advance(15 * 24 * time.Hour)
	require.NoError(t, c.Flush(ctx))
	got, _ = c.Get(e.StructureHash)
	assert.InDelta(t, 0.7*0.95*0.95, got.Confidence, 1e-4)

	_, ok := c.Lookup(text)
	assert.False(t, ok, "decayed entry falls below the serve threshold")

	// flushing again without time passing must not compound
	require.NoError(t, c.Flush(ctx))
	again, _ := c.Get(e.StructureHash)
	assert.Equal(t, got.Confidence, again.Confidence)
}

func TestAutoFlushEveryNthMutation(t *testing.T) {
	ctx := context.Background()
	store := &MemoryStore{}
	c := New(DefaultPolicy(), store)

	for i := 0; i < 9; i++ {
		c.Learn(ctx, obs(fmt.Sprintf("PAIR%c long entry 1 tp 2", 'A'+i)))
	}
	c.wg.Wait()
	assert.Equal(t, 0, store.Saves())

	c.Learn(ctx, obs("PAIRX long entry 1 tp 2"))
	c.wg.Wait()
	assert.Equal(t, 1, store.Saves())
}

func TestFileStorePersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "whitelist.json")

	c := New(DefaultPolicy(), NewFileStore(path))
	text := "LINK long entry 15 tp 16 sl 14"
	for i := 0; i < 3; i++ {
		c.Learn(ctx, obs(text))
	}
	require.NoError(t, c.Close(ctx))

	reloaded := New(DefaultPolicy(), NewFileStore(path))
	require.NoError(t, reloaded.Load(ctx))
	e, ok := reloaded.Lookup(text)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", e.Symbol)
	assert.Equal(t, []float64{50000}, e.CachedEntries)
	require.NotNil(t, e.CachedStopLoss)
	assert.Equal(t, 49000.0, *e.CachedStopLoss)
}

func TestLoadFailureDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "whitelist.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := New(DefaultPolicy(), NewFileStore(path))
	assert.Error(t, c.Load(ctx))
	assert.Equal(t, 0, c.Len())

	c.Learn(ctx, obs("DOT long entry 5 tp 6"))
	assert.Equal(t, 1, c.Len())
}

func TestMissingDocumentIsNotAnError(t *testing.T) {
	c := New(DefaultPolicy(), NewFileStore(filepath.Join(t.TempDir(), "absent.json")))
	assert.NoError(t, c.Load(context.Background()))
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := New(DefaultPolicy(), nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				text := fmt.Sprintf("SYM%c long entry %d tp %d", 'A'+i%5, i, i+1)
				if w%2 == 0 {
					c.Learn(ctx, obs(text))
				} else if e, ok := c.Lookup(text); ok {
					c.RecordUsage(ctx, e.StructureHash)
				}
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, 5, c.Len())
}

func TestCloseStopsBackgroundFlushes(t *testing.T) {
	ctx := context.Background()
	store := &MemoryStore{}
	p := DefaultPolicy()
	p.FlushEvery = 1
	c := New(p, store)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				c.Learn(ctx, obs(fmt.Sprintf("SYM%c long entry %d tp %d", 'A'+w, i, i+1)))
			}
		}(w)
	}
	require.NoError(t, c.Close(ctx))
	wg.Wait()

	saves := store.Saves()
	c.Learn(ctx, obs("LATE long entry 1 tp 2"))
	c.wg.Wait()
	assert.Equal(t, saves, store.Saves())
}
