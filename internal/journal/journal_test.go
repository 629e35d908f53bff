package journal

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trading-bot/internal/types"
)

func TestAppendUsesUTCDailyFiles(t *testing.T) {
	dir := t.TempDir()
	j := New(dir)
	// 01:30 in UTC+3 is still the previous UTC day
	j.now = func() time.Time { return time.Date(2026, 3, 2, 1, 30, 0, 0, time.FixedZone("TRT", 3*3600)) }

	require.NoError(t, j.AppendOutcome(types.Outcome{MessageID: "m1", Signal: types.ParsedSignal{Symbol: "BTCUSDT"}}))
	require.NoError(t, j.AppendOutcome(types.Outcome{MessageID: "m2", Skipped: "low confidence"}))
	require.NoError(t, j.AppendDecision(DecisionEntry{Symbol: "BTCUSDT", Valid: false, Reason: "kill switch active"}))

	f, err := os.Open(filepath.Join(dir, "signals", "2026-03-01.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var got []OutcomeEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e OutcomeEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "2026-03-01T22:30:00Z", got[0].Time)
	assert.Equal(t, "BTCUSDT", got[0].Signal.Symbol)
	assert.Equal(t, "low confidence", got[1].Skipped)

	assert.FileExists(t, filepath.Join(dir, "decisions", "2026-03-01.jsonl"))
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	j := New(dir)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	old := filepath.Join(dir, "signals", "2026-03-01.jsonl")
	fresh := filepath.Join(dir, "signals", "2026-03-09.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(old), 0o755))
	require.NoError(t, os.WriteFile(old, []byte(`{"message_id":"a"}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte(`{"message_id":"b"}`+"\n"), 0o644))
	require.NoError(t, os.Chtimes(old, now.AddDate(0, 0, -9), now.AddDate(0, 0, -9)))
	require.NoError(t, os.Chtimes(fresh, now.AddDate(0, 0, -1), now.AddDate(0, 0, -1)))

	n, err := j.CompressOlder(7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)

	gz, err := os.Open(old + ".gz")
	require.NoError(t, err)
	defer gz.Close()
	r, err := gzip.NewReader(gz)
	require.NoError(t, err)
	var e map[string]string
	require.NoError(t, json.NewDecoder(r).Decode(&e))
	assert.Equal(t, "a", e["message_id"])
}

func TestCompressOlderMissingDir(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "nope"))
	n, err := j.CompressOlder(7)
	require.NoError(t, err)
	assert.Zero(t, n)
}
