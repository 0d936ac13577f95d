package ingress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/notify/internal/events"
)

// NATSSource republishes events received on the producer subjects.
type NATSSource struct {
	sub    events.Subscriber
	pub    Publisher
	logger *slog.Logger
}

func NewNATSSource(sub events.Subscriber, pub Publisher, logger *slog.Logger) *NATSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSource{sub: sub, pub: pub, logger: logger}
}

// Run subscribes to every producer subject and blocks until ctx is done or
// the subscription ends.
func (s *NATSSource) Run(ctx context.Context) error {
	ch, cancel, err := s.sub.Subscribe(events.TopicProducerAll)
	if err != nil {
		return fmt.Errorf("ingress: %w", err)
	}
	defer cancel()
	s.logger.Info("ingress: nats source started", "subject", events.TopicProducerAll)

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(data)
		}
	}
}

func (s *NATSSource) handle(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		s.logger.Warn("ingress: dropping nats event", "err", err)
		return
	}
	s.pub.Publish(ev)
}
