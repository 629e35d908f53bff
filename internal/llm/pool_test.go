package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trading-bot/internal/types"
)

// fakeExtractor replays a fixed answer and counts calls.
type fakeExtractor struct {
	name  string
	ext   types.AIExtraction
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(ctx context.Context, text string) (types.AIExtraction, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.NoSignal(f.name), ctx.Err()
		}
	}
	return f.ext, f.err
}

func positiveExt() types.AIExtraction {
	return types.AIExtraction{Signal: true, Symbol: "BTCUSDT", Side: "long", Entries: []float64{50000}}
}

func healthOf(p *Pool, name string) Health {
	for _, s := range p.Status() {
		if s.Name == name {
			return s.Health
		}
	}
	return ""
}

func TestPool_FirstAnswerWins(t *testing.T) {
	a := &fakeExtractor{name: "a", ext: types.NoSignal("a")}
	b := &fakeExtractor{name: "b", ext: positiveExt()}
	p := NewPool(3, time.Second, Member{Extractor: a}, Member{Extractor: b})

	ext, err := p.Extract(context.Background(), "btc long 50000")
	require.NoError(t, err)
	assert.False(t, ext.Signal, "a negative answer is still an answer")
	assert.Equal(t, int32(0), b.calls.Load())
	assert.Equal(t, "pool[a,b]", p.Name())
}

func TestPool_FailoverAndHealth(t *testing.T) {
	a := &fakeExtractor{name: "a", err: errors.New("boom")}
	b := &fakeExtractor{name: "b", ext: positiveExt()}
	p := NewPool(2, time.Second, Member{Extractor: a}, Member{Extractor: b})
	ctx := context.Background()

	ext, err := p.Extract(ctx, "btc long")
	require.NoError(t, err)
	assert.True(t, ext.Signal)
	assert.Equal(t, "b", ext.Provider)
	assert.Equal(t, Degraded, healthOf(p, "a"))

	_, _ = p.Extract(ctx, "btc long")
	assert.Equal(t, Disabled, healthOf(p, "a"))

	_, _ = p.Extract(ctx, "btc long")
	assert.Equal(t, int32(2), a.calls.Load(), "disabled providers are skipped")
	assert.True(t, p.Available())

	p.Reset()
	assert.Equal(t, Healthy, healthOf(p, "a"))
}

func TestPool_SuccessRestoresHealth(t *testing.T) {
	a := &fakeExtractor{name: "a", err: errors.New("flaky")}
	p := NewPool(3, time.Second, Member{Extractor: a})

	_, err := p.Extract(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, Degraded, healthOf(p, "a"))

	a.err, a.ext = nil, positiveExt()
	_, err = p.Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, Healthy, healthOf(p, "a"))
	assert.Zero(t, p.Status()[0].Failures)
}

func TestPool_RateLimitDisablesImmediately(t *testing.T) {
	a := &fakeExtractor{name: "a", err: ErrRateLimited}
	p := NewPool(5, time.Second, Member{Extractor: a})

	ext, err := p.Extract(context.Background(), "x")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, ext.Signal)
	assert.Equal(t, Disabled, healthOf(p, "a"))
	assert.False(t, p.Available())

	_, err = p.Extract(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestPool_RPMBudgetSkips(t *testing.T) {
	a := &fakeExtractor{name: "a", ext: positiveExt()}
	b := &fakeExtractor{name: "b", ext: types.NoSignal("b")}
	p := NewPool(3, time.Second, Member{Extractor: a, RPM: 1}, Member{Extractor: b})

	first, err := p.Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, first.Signal)

	second, err := p.Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, second.Signal, "a is over budget so b answers")
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, Healthy, healthOf(p, "a"), "a skipped call is not a failure")
}

func TestPool_Timeout(t *testing.T) {
	slow := &fakeExtractor{name: "slow", ext: positiveExt(), delay: time.Second}
	p := NewPool(3, 20*time.Millisecond, Member{Extractor: slow})

	ext, err := p.Extract(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.False(t, ext.Signal)
}

func TestPool_EmptyText(t *testing.T) {
	a := &fakeExtractor{name: "a", ext: positiveExt()}
	p := NewPool(3, time.Second, Member{Extractor: a})

	ext, err := p.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, ext.Signal)
	assert.Zero(t, a.calls.Load())
}
