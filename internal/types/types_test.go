package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	s := ParsedSignal{Side: SideLong}
	assert.Equal(t, 0.0, s.Score())

	s.Symbol = "BTCUSDT"
	s.Entries = []float64{50000}
	assert.InDelta(t, 0.4, s.Score(), 1e-9)

	s.SideDetected = true
	s.TakeProfits = []float64{52000}
	s.StopLoss = Float(49000)
	assert.InDelta(t, 1.0, s.Score(), 1e-9)
}

func TestParseSide(t *testing.T) {
	side, ok := ParseSide(" BUY ")
	assert.True(t, ok)
	assert.Equal(t, SideLong, side)

	side, ok = ParseSide("Short")
	assert.True(t, ok)
	assert.Equal(t, SideShort, side)

	_, ok = ParseSide("hold")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	s := ParsedSignal{Entries: []float64{1}, StopLoss: Float(0.5), Notes: []string{"a"}}
	c := s.Clone()
	c.Entries[0] = 2
	*c.StopLoss = 0.7
	c.Notes[0] = "b"

	assert.Equal(t, 1.0, s.Entries[0])
	assert.Equal(t, 0.5, *s.StopLoss)
	assert.Equal(t, "a", s.Notes[0])
}
