// Package memory implements store.Store in process memory. It backs local
// development runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/notify/internal/model"
	"github.com/alfredjeanlab/notify/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	messages map[int64]*model.Message
	users    map[int64]model.Sender
	failure  error
	now      func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		messages: make(map[int64]*model.Message),
		users:    make(map[int64]model.Sender),
		now:      time.Now,
	}
}

// PutUser records a sender profile.
func (s *Store) PutUser(u model.Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
}

// FailWith makes every subsequent operation fail with err wrapped in a
// *store.StorageError. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Get returns a copy of the message with id, regardless of owner.
func (s *Store) Get(id int64) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return model.Message{}, false
	}
	return *m, true
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) fail(op string) error {
	return store.Wrap(op, s.failure)
}

func (s *Store) InsertMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("insert message"); err != nil {
		return err
	}
	s.nextID++
	now := s.now()
	msg.ID = s.nextID
	msg.IsRead = false
	msg.CreatedAt = now
	msg.UpdatedAt = now
	cp := *msg
	s.messages[cp.ID] = &cp
	return nil
}

func (s *Store) ListMessages(_ context.Context, receiverID int64, filter model.MessageFilter) ([]*model.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("list messages"); err != nil {
		return nil, 0, err
	}

	var matched []*model.Message
	for _, m := range s.messages {
		if m.ReceiverID != receiverID {
			continue
		}
		if filter.Type != nil && m.Type != *filter.Type {
			continue
		}
		if filter.IsRead != nil && m.IsRead != *filter.IsRead {
			continue
		}
		if filter.StartTime != nil && m.CreatedAt.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && m.CreatedAt.After(*filter.EndTime) {
			continue
		}
		cp := *m
		matched = append(matched, &cp)
	}

	asc := filter.Sort == "created_at"
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if asc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	total := len(matched)
	start := min(max(filter.Offset(), 0), total)
	end := total
	if filter.PageSize > 0 && filter.PageSize < end-start {
		end = start + filter.PageSize
	}
	return matched[start:end], total, nil
}

func (s *Store) DeleteMessage(_ context.Context, messageID, receiverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("delete message"); err != nil {
		return err
	}
	if m, ok := s.messages[messageID]; ok && m.ReceiverID == receiverID {
		delete(s.messages, messageID)
	}
	return nil
}

func (s *Store) markRead(m *model.Message, receiverID int64, now time.Time) bool {
	if m.ReceiverID != receiverID || m.IsRead {
		return false
	}
	m.IsRead = true
	m.UpdatedAt = now
	return true
}

func (s *Store) MarkAsRead(_ context.Context, messageID, receiverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("mark as read"); err != nil {
		return err
	}
	if m, ok := s.messages[messageID]; ok {
		s.markRead(m, receiverID, s.now())
	}
	return nil
}

func (s *Store) MarkAsReadBatch(_ context.Context, messageIDs []int64, receiverID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("mark batch as read"); err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, id := range messageIDs {
		if m, ok := s.messages[id]; ok && s.markRead(m, receiverID, now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkAllAsRead(_ context.Context, receiverID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("mark all as read"); err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, m := range s.messages {
		if s.markRead(m, receiverID, now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUnread(_ context.Context, receiverID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("count unread"); err != nil {
		return 0, err
	}
	n := 0
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUnreadByType(_ context.Context, receiverID int64) (model.UnreadByType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("count unread by type"); err != nil {
		return nil, err
	}
	counts := make(model.UnreadByType)
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && !m.IsRead {
			counts[m.Type]++
		}
	}
	return counts, nil
}

func (s *Store) GetSenders(_ context.Context, userIDs []int64) (map[int64]model.Sender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("get senders"); err != nil {
		return nil, err
	}
	out := make(map[int64]model.Sender, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *Store) ListMessagesAfter(_ context.Context, afterID int64, limit int) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("list messages after"); err != nil {
		return nil, err
	}
	var out []*model.Message
	for _, m := range s.messages {
		if m.ID > afterID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
