package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trading-bot/internal/types"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.ObserveTier(types.TierRulePath, 1.0)
	r.ObserveTier(types.TierRulePath, 0.8)
	r.ObserveTier(types.TierFallback, 0.4)
	r.ObserveCache(true)
	r.ObserveCache(false)
	r.ObserveCache(false)
	r.ObserveAI("claude", "signal", 1.2)
	r.ObserveRisk(false)
	r.SetAccount(9800, 2, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.tiers.WithLabelValues("RULE_PATH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tiers.WithLabelValues("FALLBACK")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.aiCalls.WithLabelValues("claude", "signal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.riskDecisions.WithLabelValues("rejected")))
	assert.Equal(t, 9800.0, testutil.ToFloat64(r.equity))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breaker))
}

func TestHandler(t *testing.T) {
	r := New()
	r.ObserveSkip("duplicate")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `signalbot_messages_skipped_total{reason="duplicate"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
