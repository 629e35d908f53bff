package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/types"
)

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// reader is the part of *kafka.Reader the source uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes a topic with a consumer group. Offsets are committed
// on Ack, so a message that crashes the pipeline is redelivered.
type KafkaSource struct {
	r     reader
	topic string

	mu      sync.Mutex
	pending map[string]kafka.Message
	closed  bool
}

var _ interfaces.MessageSource = (*KafkaSource)(nil)

func NewKafka(cfg KafkaConfig) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka source: brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka source: topic is required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "signal-trading-bot"
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10e6
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newKafkaSource(r, cfg.Topic), nil
}

func newKafkaSource(r reader, topic string) *KafkaSource {
	return &KafkaSource{r: r, topic: topic, pending: make(map[string]kafka.Message)}
}

// Next blocks until a decodable message arrives. Undecodable payloads are
// committed and skipped so they do not block the partition.
func (s *KafkaSource) Next(ctx context.Context) (types.Message, error) {
	for {
		if s.isClosed() {
			return types.Message{}, ErrClosed
		}
		km, err := s.r.FetchMessage(ctx)
		if err != nil {
			if s.isClosed() {
				return types.Message{}, ErrClosed
			}
			return types.Message{}, err
		}

		fallback := fmt.Sprintf("%s/%d/%d", km.Topic, km.Partition, km.Offset)
		msg, err := decode(km.Value, km.Time, fallback)
		if err != nil {
			logger.Warn(ctx, "Skipping undecodable kafka message", "topic", km.Topic, "offset", km.Offset, "error", err.Error())
			if cerr := s.r.CommitMessages(ctx, km); cerr != nil {
				logger.ErrorWithErr(ctx, "Failed to commit skipped message", cerr, "offset", km.Offset)
			}
			continue
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		if msg.Channel == "" {
			msg.Channel = s.topic
		}

		s.mu.Lock()
		s.pending[msg.ID] = km
		s.mu.Unlock()
		return msg, nil
	}
}

// Ack commits the offset of msg.
func (s *KafkaSource) Ack(ctx context.Context, msg types.Message) error {
	s.mu.Lock()
	km, ok := s.pending[msg.ID]
	delete(s.pending, msg.ID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := s.r.CommitMessages(ctx, km); err != nil {
		return fmt.Errorf("commit offset %d: %w", km.Offset, err)
	}
	return nil
}

func (s *KafkaSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.r.Close()
}

func (s *KafkaSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
