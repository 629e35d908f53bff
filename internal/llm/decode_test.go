package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trading-bot/internal/types"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{"plain", `{"signal": false}`, `{"signal": false}`, true},
		{"fenced", "```json\n{\"symbol\": \"BTC\"}\n```", `{"symbol": "BTC"}`, true},
		{"prose around", `Sure! Here it is: {"a": {"b": 1}} hope it helps`, `{"a": {"b": 1}}`, true},
		{"think block", `<think>{"x": 1}</think>{"symbol": "ETH"}`, `{"symbol": "ETH"}`, true},
		{"unquoted keys", `{symbol: "SOL", side: "long"}`, `{"symbol": "SOL","side": "long"}`, true},
		{"trailing comma", `{"tp": [1, 2,],}`, `{"tp": [1, 2]}`, true},
		{"single quotes", `{'symbol': 'ADA'}`, `{"symbol": "ADA"}`, true},
		{"brace in string", `{"note": "a } b", "n": 1}`, `{"note": "a } b", "n": 1}`, true},
		{"no object", "I cannot find a signal", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.content)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.JSONEq(t, tt.want, got)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("positive reply", func(t *testing.T) {
		ext, err := Decode(`{"symbol":"doge/usdt","side":"LONG","entry":"0,125","tp":[0.130,"0,135"],"sl":0.12,"leverage":"15","confidence":0.9}`, "test")
		require.NoError(t, err)
		assert.True(t, ext.Signal)
		assert.Equal(t, "DOGEUSDT", ext.Symbol)
		assert.Equal(t, "long", ext.Side)
		assert.InDeltaSlice(t, []float64{0.125}, ext.Entries, 1e-9)
		assert.InDeltaSlice(t, []float64{0.130, 0.135}, ext.TakeProfits, 1e-9)
		require.NotNil(t, ext.StopLoss)
		assert.InDelta(t, 0.12, *ext.StopLoss, 1e-9)
		assert.Equal(t, 15, ext.Leverage)
		assert.InDelta(t, 0.9, ext.Confidence, 1e-9)
		assert.Equal(t, "test", ext.Provider)
	})

	t.Run("negative shape", func(t *testing.T) {
		ext, err := Decode(`{"signal": false}`, "test")
		require.NoError(t, err)
		assert.False(t, ext.Signal)
	})

	t.Run("missing symbol reads as negative", func(t *testing.T) {
		ext, err := Decode(`{"side": "short", "entry": 10}`, "test")
		require.NoError(t, err)
		assert.False(t, ext.Signal)
	})

	t.Run("confidence clamped", func(t *testing.T) {
		ext, err := Decode(`{"symbol":"BTC","confidence":7}`, "test")
		require.NoError(t, err)
		assert.Equal(t, 1.0, ext.Confidence)
		assert.Equal(t, "BTCUSDT", ext.Symbol)
	})

	t.Run("garbage", func(t *testing.T) {
		ext, err := Decode("nothing here", "test")
		assert.ErrorIs(t, err, ErrInvalidResponse)
		assert.False(t, ext.Signal)
	})
}

func TestToSignal(t *testing.T) {
	ext := types.AIExtraction{
		Signal:      true,
		Symbol:      "ETHUSDT",
		Side:        "sell",
		Entries:     []float64{2500, -1},
		TakeProfits: []float64{2400, 2300},
		StopLoss:    types.Float(2600),
		Leverage:    500,
		Confidence:  0.4,
		Provider:    "test",
	}
	sig, err := ToSignal(ext, "eth short 2500 hedef 2400 2300 stop 2600")
	require.NoError(t, err)

	assert.Equal(t, types.TierAIPath, sig.Tier)
	assert.Equal(t, types.SideShort, sig.Side)
	assert.True(t, sig.SideDetected)
	assert.Equal(t, []float64{2500}, sig.Entries)
	assert.Zero(t, sig.Leverage, "out-of-range leverage is dropped")
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9, "scored by field presence, not the model's value")
	assert.Contains(t, sig.Notes[len(sig.Notes)-1], "0.40")

	_, err = ToSignal(types.NoSignal("test"), "hi")
	assert.ErrorIs(t, err, ErrNoSignal)
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.True(t, IsRateLimitError(ErrRateLimited))
	assert.True(t, IsRateLimitError(errString("Error 429: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errString("Rate limit reached for model")))
	assert.False(t, IsRateLimitError(errString("connection refused")))
}

type errString string

func (e errString) Error() string { return string(e) }
