// Package notify is the entry point for producers and for the read side of
// a receiver's notification inbox.
package notify

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/notify/internal/cache"
	"github.com/alfredjeanlab/notify/internal/events"
	"github.com/alfredjeanlab/notify/internal/model"
	"github.com/alfredjeanlab/notify/internal/store"
)

// Submitter accepts events for asynchronous dispatch.
type Submitter interface {
	Submit(ev model.Event) bool
}

// Service publishes events and serves a receiver's messages and read state.
// Every read-state method is scoped to the receiver: ids belonging to anyone
// else are ignored.
type Service struct {
	store      store.Store
	dispatcher Submitter
	cache      cache.UnreadCache
	publisher  events.Publisher
	logger     *slog.Logger
}

// New creates a Service. A nil cache or publisher disables that concern.
func New(s store.Store, d Submitter, c cache.UnreadCache, pub events.Publisher, logger *slog.Logger) *Service {
	if c == nil {
		c = cache.NoopCache{}
	}
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, dispatcher: d, cache: c, publisher: pub, logger: logger}
}

// Publish hands ev to the dispatcher and returns immediately. Producers
// never learn whether the event was persisted or pushed.
func (s *Service) Publish(ev model.Event) {
	s.dispatcher.Submit(ev)
}

// List returns one page of receiverID's messages, newest first by default.
func (s *Service) List(ctx context.Context, receiverID int64, filter model.MessageFilter) (*model.MessagePage, error) {
	filter = filter.WithDefaults()
	if err := model.ValidateFilter(filter); err != nil {
		return nil, err
	}

	msgs, total, err := s.store.ListMessages(ctx, receiverID, filter)
	if err != nil {
		return nil, err
	}

	senders := s.resolveSenders(ctx, msgs)
	views := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, model.NewMessageView(m, senders))
	}
	return model.NewMessagePage(views, filter.Page, filter.PageSize, total), nil
}

// resolveSenders looks up the distinct senders of msgs. A lookup failure
// degrades to id-only senders rather than failing the list.
func (s *Service) resolveSenders(ctx context.Context, msgs []*model.Message) map[int64]model.Sender {
	seen := make(map[int64]bool)
	var ids []int64
	for _, m := range msgs {
		if m.SenderID != 0 && !seen[m.SenderID] {
			seen[m.SenderID] = true
			ids = append(ids, m.SenderID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	senders, err := s.store.GetSenders(ctx, ids)
	if err != nil {
		s.logger.Warn("notify: resolve senders", "count", len(ids), "err", err)
		return nil
	}
	return senders
}

// MarkAsRead marks one message read. Already-read, missing and foreign ids
// are silent no-ops.
func (s *Service) MarkAsRead(ctx context.Context, messageID, receiverID int64) error {
	if err := s.store.MarkAsRead(ctx, messageID, receiverID); err != nil {
		return err
	}
	s.invalidate(ctx, receiverID)
	s.publish(ctx, events.TopicMessagesRead, events.MessagesRead{ReceiverID: receiverID, MessageIDs: []int64{messageID}})
	return nil
}

// MarkAsReadBatch marks the given messages read and returns how many changed.
func (s *Service) MarkAsReadBatch(ctx context.Context, messageIDs []int64, receiverID int64) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	n, err := s.store.MarkAsReadBatch(ctx, messageIDs, receiverID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, receiverID)
	if n > 0 {
		s.publish(ctx, events.TopicMessagesRead, events.MessagesRead{ReceiverID: receiverID, MessageIDs: messageIDs})
	}
	return n, nil
}

// MarkAllAsRead marks every unread message of receiverID read and returns
// how many changed.
func (s *Service) MarkAllAsRead(ctx context.Context, receiverID int64) (int, error) {
	n, err := s.store.MarkAllAsRead(ctx, receiverID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, receiverID)
	if n > 0 {
		s.publish(ctx, events.TopicMessagesRead, events.MessagesRead{ReceiverID: receiverID, All: true})
	}
	return n, nil
}

// Delete removes a message owned by receiverID. Foreign ids are ignored.
func (s *Service) Delete(ctx context.Context, messageID, receiverID int64) error {
	if err := s.store.DeleteMessage(ctx, messageID, receiverID); err != nil {
		return err
	}
	s.invalidate(ctx, receiverID)
	s.publish(ctx, events.TopicMessageDeleted, events.MessageDeleted{ReceiverID: receiverID, MessageID: messageID})
	return nil
}

// UnreadCount returns receiverID's total unread messages. A cached by-type
// snapshot is summed when present, so the total always agrees with
// UnreadCountByType.
func (s *Service) UnreadCount(ctx context.Context, receiverID int64) (int, error) {
	if counts, ok := s.cached(ctx, receiverID); ok {
		return counts.Total(), nil
	}
	return s.store.CountUnread(ctx, receiverID)
}

// UnreadCountByType returns receiverID's unread messages per kind.
func (s *Service) UnreadCountByType(ctx context.Context, receiverID int64) (model.UnreadByType, error) {
	if counts, ok := s.cached(ctx, receiverID); ok {
		return counts, nil
	}
	// The generation is read before counting: if an insert's invalidation
	// lands while the store is being read, the Set below is discarded.
	gen, genErr := s.cache.Generation(ctx, receiverID)
	counts, err := s.store.CountUnreadByType(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		s.logger.Warn("notify: read unread cache generation", "receiver_id", receiverID, "err", genErr)
		return counts, nil
	}
	if err := s.cache.Set(ctx, receiverID, gen, counts); err != nil {
		s.logger.Warn("notify: write unread cache", "receiver_id", receiverID, "err", err)
	}
	return counts, nil
}

func (s *Service) cached(ctx context.Context, receiverID int64) (model.UnreadByType, bool) {
	counts, ok, err := s.cache.Get(ctx, receiverID)
	if err != nil {
		s.logger.Warn("notify: read unread cache", "receiver_id", receiverID, "err", err)
		return nil, false
	}
	return counts, ok
}

func (s *Service) invalidate(ctx context.Context, receiverID int64) {
	if err := s.cache.Invalidate(ctx, receiverID); err != nil {
		s.logger.Warn("notify: invalidate unread cache", "receiver_id", receiverID, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("notify: publish", "topic", topic, "err", err)
	}
}
