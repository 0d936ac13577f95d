// Package dispatch turns submitted events into persisted messages and, when
// the receiver is connected, live pushes.
//
// Events are sharded by receiver onto a fixed set of workers, each with a
// bounded queue. One receiver's events are therefore handled in submission
// order, and a full shard sheds new events instead of blocking the producer.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alfredjeanlab/notify/internal/cache"
	"github.com/alfredjeanlab/notify/internal/events"
	"github.com/alfredjeanlab/notify/internal/model"
	"github.com/alfredjeanlab/notify/internal/store"
)

const (
	DefaultWorkers   = 8
	DefaultQueueSize = 256
)

// Presence is the part of the presence registry the dispatcher needs.
type Presence interface {
	IsOnline(userID int64) bool
	SendTo(userID int64, payload []byte) bool
}

// Config sizes the worker pool. Zero values use the defaults.
type Config struct {
	Workers   int
	QueueSize int
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Accepted  int64 `json:"accepted"`
	Shed      int64 `json:"shed"`
	Invalid   int64 `json:"invalid"`
	Persisted int64 `json:"persisted"`
	Failed    int64 `json:"failed"`
	Pushed    int64 `json:"pushed"`
}

// Dispatcher runs the persist-then-push pipeline on a worker pool.
type Dispatcher struct {
	store     store.Store
	presence  Presence
	cache     cache.UnreadCache
	publisher events.Publisher
	logger    *slog.Logger

	mu      sync.RWMutex
	queues  []chan model.Event
	started bool
	closed  bool
	wg      sync.WaitGroup

	accepted  atomic.Int64
	shed      atomic.Int64
	invalid   atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
	pushed    atomic.Int64
}

// New creates a dispatcher. Events submitted before Start are queued.
// A nil cache or publisher disables that step.
func New(s store.Store, p Presence, c cache.UnreadCache, pub events.Publisher, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if c == nil {
		c = cache.NoopCache{}
	}
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	queues := make([]chan model.Event, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan model.Event, cfg.QueueSize)
	}
	return &Dispatcher{
		store:     s,
		presence:  p,
		cache:     c,
		publisher: pub,
		logger:    logger,
		queues:    queues,
	}
}

// Start launches the workers. ctx is used for store, cache and bus calls;
// canceling it does not stop the workers, Stop does.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for _, q := range d.queues {
		d.wg.Add(1)
		go func(q <-chan model.Event) {
			defer d.wg.Done()
			for ev := range q {
				d.process(ctx, ev)
			}
		}(q)
	}
	d.logger.Info("dispatcher started", "workers", len(d.queues), "queue_size", cap(d.queues[0]))
}

// Stop stops accepting events, waits for queued events to be processed,
// then returns.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
	d.logger.Info("dispatcher stopped", "persisted", d.persisted.Load(), "shed", d.shed.Load())
}

// Submit queues ev for processing and returns immediately. It reports false
// when the event was shed because its shard is full or the dispatcher is
// stopped.
func (d *Dispatcher) Submit(ev model.Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.shed.Add(1)
		d.logger.Warn("dispatch: event rejected, dispatcher stopped",
			"receiver_id", ev.ReceiverID, "kind", ev.Kind)
		return false
	}

	select {
	case d.queues[d.shard(ev.ReceiverID)] <- ev:
		d.accepted.Add(1)
		return true
	default:
		d.shed.Add(1)
		d.logger.Warn("dispatch: queue full, event shed",
			"receiver_id", ev.ReceiverID, "kind", ev.Kind)
		return false
	}
}

// Stats returns a snapshot of the pipeline counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Accepted:  d.accepted.Load(),
		Shed:      d.shed.Load(),
		Invalid:   d.invalid.Load(),
		Persisted: d.persisted.Load(),
		Failed:    d.failed.Load(),
		Pushed:    d.pushed.Load(),
	}
}

func (d *Dispatcher) shard(receiverID int64) int {
	return int(uint64(receiverID) % uint64(len(d.queues)))
}

func (d *Dispatcher) process(ctx context.Context, ev model.Event) {
	if err := ev.Validate(); err != nil {
		d.invalid.Add(1)
		d.logger.Error("dispatch: invalid event dropped", "receiver_id", ev.ReceiverID, "err", err)
		return
	}

	msg := ev.ToMessage()
	if err := d.store.InsertMessage(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Error("dispatch: persist failed, event dropped",
			"receiver_id", ev.ReceiverID, "kind", ev.Kind, "err", err)
		return
	}
	d.persisted.Add(1)

	if err := d.cache.Invalidate(ctx, msg.ReceiverID); err != nil {
		d.logger.Warn("dispatch: invalidate unread cache", "receiver_id", msg.ReceiverID, "err", err)
	}

	online := d.presence.IsOnline(msg.ReceiverID)

	var senders map[int64]model.Sender
	if online && msg.SenderID != 0 {
		var err error
		senders, err = d.store.GetSenders(ctx, []int64{msg.SenderID})
		if err != nil {
			d.logger.Warn("dispatch: resolve sender", "sender_id", msg.SenderID, "err", err)
		}
	}
	view := model.NewMessageView(msg, senders)

	if online {
		d.push(msg.ReceiverID, view)
	}

	created := events.MessageCreated{ReceiverID: msg.ReceiverID, Message: view}
	if err := d.publisher.Publish(ctx, events.TopicMessageCreated, created); err != nil {
		d.logger.Warn("dispatch: publish message created", "message_id", msg.ID, "err", err)
	}
}

func (d *Dispatcher) push(receiverID int64, view model.MessageView) {
	payload, err := json.Marshal(view)
	if err != nil {
		d.logger.Error("dispatch: marshal message view", "message_id", view.MessageID, "err", err)
		return
	}
	if d.presence.SendTo(receiverID, payload) {
		d.pushed.Add(1)
	}
}
