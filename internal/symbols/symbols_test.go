package symbols

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	symbols []string
	err     error
	calls   int
}

func (s *stubFetcher) FetchSymbols(context.Context) ([]string, error) {
	s.calls++
	return s.symbols, s.err
}

func TestStatic(t *testing.T) {
	s := NewStatic("btcusdt", " ETHUSDT ")
	assert.True(t, s.Exists("BTCUSDT"))
	assert.True(t, s.Exists("ethusdt"))
	assert.False(t, s.Exists("DOGEUSDT"))
	assert.True(t, AllowAll{}.Exists("ANYTHING"))
}

func TestOracle_RefreshAndCache(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "symbols.json")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	f := &stubFetcher{symbols: []string{"BTCUSDT", "DOGEUSDT"}}
	o := NewOracle(f, WithCacheFile(path), WithClock(clock))
	o.Load(ctx)
	assert.Equal(t, 1, f.calls)
	assert.True(t, o.Exists("DOGEUSDT"))
	assert.False(t, o.Exists("FAKEUSDT"))

	// a second instance starts from the file and does not hit the exchange
	f2 := &stubFetcher{err: errors.New("offline")}
	o2 := NewOracle(f2, WithCacheFile(path), WithClock(clock))
	o2.Load(ctx)
	assert.Zero(t, f2.calls)
	assert.Equal(t, 2, o2.Len())
	assert.True(t, o2.Exists("BTCUSDT"))
}

func TestOracle_StaleRefreshFailureKeepsSet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "symbols.json")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	o := NewOracle(&stubFetcher{symbols: []string{"BTCUSDT"}}, WithCacheFile(path), WithClock(func() time.Time { return now }))
	require.NoError(t, o.Refresh(ctx))

	later := now.Add(25 * time.Hour)
	f := &stubFetcher{err: errors.New("offline")}
	o2 := NewOracle(f, WithCacheFile(path), WithClock(func() time.Time { return later }))
	o2.Load(ctx)
	assert.Equal(t, 1, f.calls)
	assert.True(t, o2.Stale())
	assert.True(t, o2.Exists("BTCUSDT"))
	assert.False(t, o2.Exists("ETHUSDT"))
}

func TestOracle_EmptySetAcceptsAll(t *testing.T) {
	o := NewOracle(&stubFetcher{err: errors.New("offline")})
	o.Load(context.Background())
	assert.Zero(t, o.Len())
	assert.True(t, o.Exists("WHATEVERUSDT"))
}

func TestOracle_RefreshIfStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &stubFetcher{symbols: []string{"BTCUSDT"}}
	o := NewOracle(f, WithClock(func() time.Time { return now }), WithTTL(time.Hour))

	o.RefreshIfStale(context.Background())
	o.RefreshIfStale(context.Background())
	assert.Equal(t, 1, f.calls)

	now = now.Add(2 * time.Hour)
	o.RefreshIfStale(context.Background())
	assert.Equal(t, 2, f.calls)
}

func TestExchangeFetcher_Prices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"65000.10"},{"symbol":"ETHUSDT","price":"bad"},{"symbol":"DOGEUSDT","price":"0.125"}]`))
	}))
	defer srv.Close()

	got, err := NewExchangeFetcher(srv.URL).Prices(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTCUSDT": 65000.10}, got)
}
