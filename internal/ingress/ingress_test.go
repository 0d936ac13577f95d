package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/segmentio/kafka-go"

	"github.com/alfredjeanlab/notify/internal/events"
	"github.com/alfredjeanlab/notify/internal/model"
)

var note = model.Target{ID: 42, Type: model.TargetNote}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) got() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"like", `{"kind":1,"senderId":1,"receiverId":2,"target":{"targetId":42,"targetType":1},"content":"x"}`, false},
		{"system", `{"kind":3,"receiverId":2,"content":"maintenance"}`, false},
		{"not json", `{`, true},
		{"missing receiver", `{"kind":1,"senderId":1}`, true},
		{"unknown kind", `{"kind":9,"senderId":1,"receiverId":2}`, true},
		{"system with sender", `{"kind":3,"senderId":1,"receiverId":2}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// chanSubscriber hands out a test-controlled channel.
type chanSubscriber struct {
	ch       chan []byte
	topic    string
	canceled bool
}

func (s *chanSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	s.topic = topic
	return s.ch, func() { s.canceled = true }, nil
}

func (s *chanSubscriber) Close() error { return nil }

func TestNATSSource_ForwardsValidEvents(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan []byte, 4)}
	rec := &recorder{}

	sub.ch <- mustJSON(t, model.NewLikeEvent(1, 2, note, ""))
	sub.ch <- []byte(`garbage`)
	sub.ch <- mustJSON(t, model.NewSystemEvent(3, model.Target{}, "hi"))
	close(sub.ch)

	if err := NewNATSSource(sub, rec, discardLogger()).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sub.topic != events.TopicProducerAll || !sub.canceled {
		t.Errorf("topic=%q canceled=%v", sub.topic, sub.canceled)
	}
	got := rec.got()
	if len(got) != 2 || got[0].ReceiverID != 2 || got[1].Kind != model.KindSystem {
		t.Errorf("forwarded %+v", got)
	}
}

func TestNATSSource_StopsOnCancel(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan []byte)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewNATSSource(sub, &recorder{}, discardLogger()).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSProducerToSource(t *testing.T) {
	url := startTestNATS(t)

	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()
	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	producer := NewNATSProducer(pub)
	defer producer.Close()

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewNATSSource(sub, rec, discardLogger()).Run(ctx) //nolint:errcheck

	// The subscription goes live asynchronously; keep producing until one lands.
	deadline := time.Now().Add(3 * time.Second)
	for len(rec.got()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no event received over NATS")
		}
		if err := producer.Produce(ctx, model.NewCommentEvent(1, 2, note, "over the bus")); err != nil {
			t.Fatalf("Produce: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if ev := rec.got()[0]; ev.Kind != model.KindComment || ev.Content != "over the bus" || ev.Target != note {
		t.Errorf("received %+v", ev)
	}
}

type topicRecorder struct {
	topics []string
}

func (p *topicRecorder) Publish(_ context.Context, topic string, _ any) error {
	p.topics = append(p.topics, topic)
	return nil
}

func (p *topicRecorder) Close() error { return nil }

func TestNATSProducer_TopicPerKind(t *testing.T) {
	rec := &topicRecorder{}
	p := NewNATSProducer(rec)
	ctx := context.Background()

	_ = p.Produce(ctx, model.NewLikeEvent(1, 2, note, ""))
	_ = p.Produce(ctx, model.NewSystemEvent(2, model.Target{}, ""))
	if err := p.Produce(ctx, model.Event{Kind: model.KindLike}); err == nil {
		t.Error("invalid event should be rejected before publishing")
	}
	if len(rec.topics) != 2 || rec.topics[0] != "notify.event.like" || rec.topics[1] != "notify.event.system" {
		t.Errorf("topics = %v", rec.topics)
	}
}

// fakeReader serves queued messages and then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs []error
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestKafkaSource_ConsumesAndCommits(t *testing.T) {
	r := &fakeReader{
		fetchErrs: []error{errors.New("broker unavailable")},
		msgs: []kafka.Message{
			{Offset: 10, Value: mustJSON(t, model.NewLikeEvent(1, 2, note, ""))},
			{Offset: 11, Value: []byte(`{"kind":1}`)},
			{Offset: 12, Value: mustJSON(t, model.NewCommentEvent(1, 2, note, "c"))},
		},
	}
	rec := &recorder{}
	src := NewKafkaSource(r, rec, discardLogger())
	src.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(r.commits()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("committed %v, want 3 offsets", r.commits())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}

	got := rec.got()
	if len(got) != 2 || got[0].Kind != model.KindLike || got[1].Kind != model.KindComment {
		t.Errorf("forwarded %+v", got)
	}
	if c := r.commits(); c[0] != 10 || c[1] != 11 || c[2] != 12 {
		t.Errorf("commits = %v, want [10 11 12]", c)
	}
	if err := src.Close(); err != nil || !r.closed {
		t.Errorf("Close = %v closed=%v", err, r.closed)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaProducer_KeysByReceiver(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaProducer(w)

	if err := p.Produce(context.Background(), model.NewLikeEvent(1, 77, note, "")); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if err := p.Produce(context.Background(), model.Event{}); err == nil {
		t.Error("invalid event should be rejected")
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "77" {
		t.Fatalf("messages = %+v", w.msgs)
	}
	ev, err := Decode(w.msgs[0].Value)
	if err != nil || ev.ReceiverID != 77 || ev.SenderID != 1 {
		t.Errorf("round trip = %+v, %v", ev, err)
	}
}
