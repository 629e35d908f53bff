package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/types"
)

// JSONLSource replays messages from a file with one JSON record (or one
// plain-text message) per line.
type JSONLSource struct {
	path    string
	channel string

	mu      sync.Mutex
	f       *os.File
	scanner *bufio.Scanner
	line    int
	closed  bool
}

var _ interfaces.MessageSource = (*JSONLSource)(nil)

// OpenJSONL opens path. channel fills records that carry none.
func OpenJSONL(path, channel string) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open message file: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &JSONLSource{path: path, channel: channel, f: f, scanner: sc}, nil
}

// Next returns the next valid record. Malformed lines are logged and
// skipped; the end of the file is io.EOF.
func (s *JSONLSource) Next(ctx context.Context) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return types.Message{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return types.Message{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return types.Message{}, fmt.Errorf("read %s: %w", s.path, err)
			}
			return types.Message{}, io.EOF
		}
		s.line++
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		msg, err := decode(raw, time.Now(), fmt.Sprintf("%s:%d", s.path, s.line))
		if err != nil {
			logger.Warn(ctx, "Skipping malformed message line", "path", s.path, "line", s.line, "error", err.Error())
			continue
		}
		if msg.Channel == "" {
			msg.Channel = s.channel
		}
		return msg, nil
	}
}

// Ack is a no-op: a replay has nothing to commit.
func (s *JSONLSource) Ack(context.Context, types.Message) error { return nil }

func (s *JSONLSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
