package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trading-bot/internal/extract"
	"signal-trading-bot/internal/symbols"
	"signal-trading-bot/internal/types"
	"signal-trading-bot/internal/whitelist"
)

const dogeSignal = "DOGE long giriş 0,125 hedef 0,130 - 0,135 stop 0,120 15x"

type fakeAI struct {
	ext   types.AIExtraction
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) Extract(ctx context.Context, text string) (types.AIExtraction, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.NoSignal("fake"), ctx.Err()
		}
	}
	return f.ext, f.err
}

type tally struct {
	tiers map[types.Tier]int
	hits  int
	miss  int
}

func (t *tally) ObserveTier(tier types.Tier, _ float64) {
	if t.tiers == nil {
		t.tiers = map[types.Tier]int{}
	}
	t.tiers[tier]++
}

func (t *tally) ObserveCache(hit bool) {
	if hit {
		t.hits++
	} else {
		t.miss++
	}
}

func pepeExtraction() types.AIExtraction {
	return types.AIExtraction{
		Signal:      true,
		Symbol:      "PEPEUSDT",
		Side:        "long",
		Entries:     []float64{0.0000120},
		TakeProfits: []float64{0.0000130},
		StopLoss:    types.Float(0.0000110),
		Confidence:  0.8,
		Provider:    "fake",
	}
}

func hasNote(sig types.ParsedSignal, substr string) bool {
	for _, n := range sig.Notes {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

func TestRulePathNeverCallsAI(t *testing.T) {
	ai := &fakeAI{ext: pepeExtraction()}
	o := New(DefaultConfig(), extract.New(nil), WithAI(ai))

	sig := o.Parse(context.Background(), dogeSignal)
	assert.Equal(t, types.TierRulePath, sig.Tier)
	assert.Equal(t, "DOGEUSDT", sig.Symbol)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	assert.True(t, hasNote(sig, "tier RULE_PATH"))
	assert.False(t, hasNote(sig, "AI_PATH"))
	assert.Zero(t, ai.calls.Load())
}

func TestFastPathAfterProbation(t *testing.T) {
	ctx := context.Background()
	cache := whitelist.New(whitelist.DefaultPolicy(), nil)
	rec := &tally{}
	o := New(DefaultConfig(), extract.New(nil), WithCache(cache), WithRecorder(rec))

	// learned at 0.60, 0.65, 0.70; the fourth message is served from cache
	for i := 0; i < 3; i++ {
		sig := o.Parse(ctx, dogeSignal)
		require.Equal(t, types.TierRulePath, sig.Tier, "parse %d", i+1)
	}
	sig := o.Parse(ctx, dogeSignal)
	assert.Equal(t, types.TierFastPath, sig.Tier)
	assert.Equal(t, "DOGEUSDT", sig.Symbol)
	assert.Equal(t, types.SideLong, sig.Side)
	assert.True(t, sig.SideDetected)
	assert.InDeltaSlice(t, []float64{0.130, 0.135}, sig.TakeProfits, 1e-9)
	assert.Equal(t, 15, sig.Leverage)
	assert.GreaterOrEqual(t, sig.Confidence, 0.7)
	assert.True(t, hasNote(sig, "tier FAST_PATH"))

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 3, rec.miss)
	assert.Equal(t, 3, rec.tiers[types.TierRulePath])
	assert.Equal(t, 1, rec.tiers[types.TierFastPath])

	e, ok := cache.Get(cache.Stats().TopPatterns[0].Hash)
	require.True(t, ok)
	assert.Equal(t, 4, e.SuccessCount, "a served hit counts as a success")
}

func TestAIPathAcceptedAndLearned(t *testing.T) {
	ctx := context.Background()
	cache := whitelist.New(whitelist.DefaultPolicy(), nil)
	ai := &fakeAI{ext: pepeExtraction()}
	o := New(DefaultConfig(), extract.New(nil), WithCache(cache), WithAI(ai))

	sig := o.Parse(ctx, "pepe looking strong, watch it")
	assert.Equal(t, types.TierAIPath, sig.Tier)
	assert.Equal(t, "PEPEUSDT", sig.Symbol)
	assert.True(t, hasNote(sig, "tier AI_PATH"))
	assert.Equal(t, int32(1), ai.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestAIPathLowConfidenceNotLearned(t *testing.T) {
	cache := whitelist.New(whitelist.DefaultPolicy(), nil)
	ai := &fakeAI{ext: types.AIExtraction{Signal: true, Symbol: "PEPEUSDT", Provider: "fake"}}
	o := New(DefaultConfig(), extract.New(nil), WithCache(cache), WithAI(ai))

	sig := o.Parse(context.Background(), "pepe looking strong, watch it")
	assert.Equal(t, types.TierAIPath, sig.Tier)
	assert.InDelta(t, 0.2, sig.Confidence, 1e-9)
	assert.Zero(t, cache.Len())
}

func TestFallback(t *testing.T) {
	const weak = "pepe looking strong, watch it"
	tests := []struct {
		name string
		opts []Option
		cfg  Config
		note string
	}{
		{"no AI", nil, DefaultConfig(), "no AI fallback configured"},
		{"AI declines", []Option{WithAI(&fakeAI{ext: types.NoSignal("fake")})}, DefaultConfig(), "found no signal"},
		{"AI errors", []Option{WithAI(&fakeAI{err: errors.New("502 bad gateway")})}, DefaultConfig(), "AI fallback failed"},
		{
			"AI times out",
			[]Option{WithAI(&fakeAI{ext: pepeExtraction(), delay: time.Second})},
			Config{AITimeout: 20 * time.Millisecond},
			"timed out",
		},
		{
			"AI symbol unlisted",
			[]Option{WithAI(&fakeAI{ext: pepeExtraction()}), WithOracle(symbols.NewStatic("BTCUSDT"))},
			DefaultConfig(),
			"not listed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(tt.cfg, extract.New(nil), tt.opts...)
			sig := o.Parse(context.Background(), weak)
			assert.Equal(t, types.TierFallback, sig.Tier)
			assert.Less(t, sig.Confidence, 0.75)
			assert.True(t, hasNote(sig, "tier FALLBACK"))
			assert.True(t, hasNote(sig, tt.note), "notes: %v", sig.Notes)
		})
	}
}

func TestThresholdIsConfigurable(t *testing.T) {
	ai := &fakeAI{ext: pepeExtraction()}
	o := New(Config{RuleThreshold: 0.5}, extract.New(nil), WithAI(ai))

	sig := o.Parse(context.Background(), "DOGE long 0,125")
	assert.Equal(t, types.TierRulePath, sig.Tier)
	assert.InDelta(t, 0.6, sig.Confidence, 1e-9)
	assert.Zero(t, ai.calls.Load())
}
