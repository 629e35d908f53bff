package engineobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trading-bot/internal/types"
)

type stubEngine struct {
	out *types.Outcome
	err error
}

func (s stubEngine) Process(context.Context, types.Message) (*types.Outcome, error) {
	return s.out, s.err
}

func TestWrapPassesThrough(t *testing.T) {
	want := &types.Outcome{
		MessageID:  "1",
		Validation: &types.ValidationResult{Valid: false, Reason: "kill switch active: test"},
		Skipped:    "risk_rejected",
	}
	out, err := Wrap(stubEngine{out: want}).Process(context.Background(), types.Message{ID: "1", Text: "x"})
	require.NoError(t, err)
	assert.Same(t, want, out)

	boom := errors.New("boom")
	partial := &types.Outcome{MessageID: "2"}
	out, err = Wrap(stubEngine{out: partial, err: boom}).Process(context.Background(), types.Message{ID: "2"})
	assert.ErrorIs(t, err, boom)
	assert.Same(t, partial, out)
}
