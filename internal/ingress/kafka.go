package ingress

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaReader is the part of *kafka.Reader the source uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader creates a consumer-group reader for the producer topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
}

// KafkaSource republishes events consumed from a Kafka topic. Offsets are
// committed after the event has been handed to the publisher, including
// events skipped as malformed.
type KafkaSource struct {
	reader     KafkaReader
	pub        Publisher
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewKafkaSource(r KafkaReader, pub Publisher, logger *slog.Logger) *KafkaSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSource{reader: r, pub: pub, logger: logger, retryDelay: time.Second}
}

// Run consumes until ctx is done. Fetch errors are retried after a delay.
func (s *KafkaSource) Run(ctx context.Context) error {
	s.logger.Info("ingress: kafka source started")
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.Warn("ingress: kafka fetch failed", "err", err, "retry_in", s.retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.retryDelay):
			}
			continue
		}

		ev, err := Decode(m.Value)
		if err != nil {
			s.logger.Warn("ingress: dropping kafka event",
				"partition", m.Partition,
				"offset", m.Offset,
				"err", err,
			)
		} else {
			s.pub.Publish(ev)
		}

		if err := s.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			s.logger.Warn("ingress: kafka commit failed", "offset", m.Offset, "err", err)
		}
	}
}

// Close closes the underlying reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
