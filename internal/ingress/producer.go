package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/alfredjeanlab/notify/internal/events"
	"github.com/alfredjeanlab/notify/internal/model"
)

// Producer sends producer events to the bus. It is the client side of the
// sources in this package.
type Producer interface {
	Produce(ctx context.Context, ev model.Event) error
	Close() error
}

// NATSProducer publishes each event on its kind's producer subject.
type NATSProducer struct {
	pub events.Publisher
}

func NewNATSProducer(pub events.Publisher) *NATSProducer {
	return &NATSProducer{pub: pub}
}

func (p *NATSProducer) Produce(ctx context.Context, ev model.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return p.pub.Publish(ctx, events.ProducerTopic(ev.Kind), ev)
}

func (p *NATSProducer) Close() error { return p.pub.Close() }

// KafkaWriter is the part of *kafka.Writer the producer uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a writer for the producer topic. Messages are
// hashed by key so one receiver's events land on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

// KafkaProducer writes events keyed by receiver id.
type KafkaProducer struct {
	w KafkaWriter
}

func NewKafkaProducer(w KafkaWriter) *KafkaProducer {
	return &KafkaProducer{w: w}
}

func (p *KafkaProducer) Produce(ctx context.Context, ev model.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.ReceiverID, 10)),
		Value: data,
	})
}

func (p *KafkaProducer) Close() error { return p.w.Close() }
