package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	clientName = "notifyd"

	// Pending payloads per subscription. The NATS client drops (and reports
	// a slow consumer) once this many are waiting.
	subscribeBuffer = 256

	flushTimeout = 2 * time.Second
)

// dial connects with unlimited reconnects and logs connection state changes.
// Extra options are applied after the defaults and may override them.
func dial(url, role string, opts ...nats.Option) (*nats.Conn, error) {
	logger := slog.Default().With("component", "nats", "role", role)
	defaults := []nats.Option{
		nats.Name(clientName + "-" + role),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Warn("nats async error", "subject", subject, "err", err)
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := dial(url, "publisher", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends event as a JSON body tagged with a content-type header.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", topic, err)
	}
	msg := nats.NewMsg(topic)
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = data
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	defer p.conn.Close()
	if !p.conn.IsConnected() {
		return nil
	}
	if err := p.conn.FlushTimeout(flushTimeout); err != nil {
		return fmt.Errorf("flushing NATS: %w", err)
	}
	return nil
}

// NATSSubscriber hands out payload channels for NATS subjects. Every
// channel it returns is closed when the subscription is cancelled or the
// connection is closed for good.
type NATSSubscriber struct {
	conn   *nats.Conn
	closed chan struct{}
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	closed := make(chan struct{})
	var once sync.Once
	onClosed := nats.ClosedHandler(func(*nats.Conn) {
		once.Do(func() { close(closed) })
	})
	nc, err := dial(url, "subscriber", append(opts, onClosed)...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc, closed: closed}, nil
}

// Subscribe delivers raw payloads for topic, which may contain wildcards
// such as "notify.event.>". The subscription is registered on the server
// before Subscribe returns.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	msgs := make(chan *nats.Msg, subscribeBuffer)
	sub, err := s.conn.ChanSubscribe(topic, msgs)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", topic, err)
	}

	out := make(chan []byte)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case <-stop:
				return
			case <-s.closed:
				return
			case m := <-msgs:
				select {
				case out <- m.Data:
				case <-stop:
					return
				case <-s.closed:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(stop)
			<-done
		})
	}
	return out, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
