package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	lines := `{"id":"1","text":"BTC long 50000","timestamp":"2026-03-01T10:00:00Z","channel":"vip"}

not json but a message
{"broken":
{"message":"ETH short 2500","date":"2026-03-01T11:00:00+03:00"}
{"text":"   "}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))

	src, err := OpenJSONL(path, "replay")
	require.NoError(t, err)
	defer src.Close()
	ctx := context.Background()

	m, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", m.ID)
	assert.Equal(t, "vip", m.Channel)
	assert.Equal(t, "BTC long 50000", m.Text)

	m, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "not json but a message", m.Text)
	assert.Equal(t, "replay", m.Channel)
	assert.Contains(t, m.ID, "messages.jsonl:3")

	m, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ETH short 2500", m.Text)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), m.Timestamp)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, src.Close())
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return kafka.Message{}, io.ErrClosedPipe
	}
	if len(f.queue) == 0 {
		return kafka.Message{}, errors.New("drained")
	}
	m := f.queue[0]
	f.queue = f.queue[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaSource(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fr := &fakeReader{queue: []kafka.Message{
		{Topic: "signals", Partition: 0, Offset: 7, Value: []byte(`{"text":""}`), Time: at},
		{Topic: "signals", Partition: 0, Offset: 8, Value: []byte("SOL long 180 tp 190"), Time: at},
	}}
	src := newKafkaSource(fr, "signals")
	ctx := context.Background()

	m, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "signals/0/8", m.ID)
	assert.Equal(t, "signals", m.Channel)
	assert.Equal(t, at, m.Timestamp)
	assert.Equal(t, []int64{7}, fr.committed, "undecodable payloads are committed and skipped")

	require.NoError(t, src.Ack(ctx, m))
	assert.Equal(t, []int64{7, 8}, fr.committed)
	require.NoError(t, src.Ack(ctx, m), "double ack is a no-op")
	assert.Len(t, fr.committed, 2)

	require.NoError(t, src.Close())
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewKafkaValidates(t *testing.T) {
	_, err := NewKafka(KafkaConfig{Topic: "x"})
	assert.Error(t, err)
	_, err = NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
