package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signal-trading-bot/internal/types"
)

func TestOf(t *testing.T) {
	fp := Of("DOGE long giriş 0,125 hedef 0,130 - 0,135 stop 0,120 15x")

	assert.True(t, fp.HasEntryKeyword)
	assert.True(t, fp.HasTPKeyword)
	assert.True(t, fp.HasSLKeyword)
	assert.True(t, fp.HasLeverageKeyword)
	assert.Equal(t, PositionStart, fp.EntryPosition)
	assert.Equal(t, 5, fp.DigitTokenCount)
	assert.Equal(t, ShapeCompact, fp.Shape)
	assert.Equal(t, types.LocaleMixed, fp.Language)
}

func TestShape(t *testing.T) {
	assert.Equal(t, ShapeLabeled, Of("İŞLEM TÜRÜ: LONG\nCOİN ADI: ZEC/USDT\nHedefler: 375").Shape)
	assert.Equal(t, ShapeMultiline, Of("BTC long\n50000").Shape)
	assert.Equal(t, PositionNone, Of("BTC long 50000").EntryPosition)
}

func TestHashIgnoresNumbers(t *testing.T) {
	pairs := [][2]string{
		{"BTC long entry 50000 tp 52000", "BTC long entry 51000 tp 53000"},
		{"DOGE long giriş 0,125 hedef 0,130 - 0,135 stop 0,120 15x", "DOGE long giriş 0,2 hedef 0,25 - 0,3 stop 0,1 20x"},
		{"ETH short\nEntry: 3100.5\nTP: 3000\nSL: 3200", "ETH short\nEntry: 2999\nTP: 2900.25\nSL: 3105"},
	}
	for _, p := range pairs {
		_, h1 := Compute(p[0])
		_, h2 := Compute(p[1])
		assert.Equal(t, h1, h2, "%q vs %q", p[0], p[1])
	}
}

func TestHashSeparatesLayouts(t *testing.T) {
	_, a := Compute("BTC long entry 50000 tp 52000")
	_, b := Compute("BTC long tp 52000 entry 50000")
	_, c := Compute("BTC long entry 50000 tp 52000 sl 49000")
	_, d := Compute("BTC long\nentry 50000\ntp 52000")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestSkeleton(t *testing.T) {
	assert.Equal(t, "btc long entry NUM tp NUM - NUM", Skeleton("BTC 🚀 long entry 50000 tp 52,5 - 53.000!!"))
}
