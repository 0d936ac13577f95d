// Package presence tracks which receivers currently hold a live connection.
//
// The Registry is an in-memory map from user id to that user's single live
// connection. It is owned by one process; nothing here coordinates across
// nodes. The most recent Register for a user wins.
package presence

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Conn is a live, writable connection to one client.
// Send must not block for long: transports queue the payload and return.
type Conn interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// DeliveryError describes a failed push to a registered connection.
type DeliveryError struct {
	UserID int64
	ConnID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to user %d (conn %s): %v", e.UserID, e.ConnID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Entry is a snapshot of one registered user.
type Entry struct {
	UserID      int64     `json:"user_id"`
	ConnID      string    `json:"conn_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

type entry struct {
	conn        Conn
	connectedAt time.Time
}

// Registry maps user ids to their current live connection.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]entry
	logger  *slog.Logger
}

// New creates an empty registry. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[int64]entry),
		logger:  logger,
	}
}

// Register makes conn the live connection for userID, replacing any prior
// entry. The replaced connection is left open; its own close path calls
// UnregisterConn, which will not evict the newer entry.
func (r *Registry) Register(userID int64, conn Conn) {
	r.mu.Lock()
	prev, replaced := r.entries[userID]
	r.entries[userID] = entry{conn: conn, connectedAt: time.Now()}
	r.mu.Unlock()

	if replaced && prev.conn != conn {
		r.logger.Info("presence: connection replaced",
			"user_id", userID, "old_conn", prev.conn.ID(), "new_conn", conn.ID())
		return
	}
	r.logger.Info("presence: user online", "user_id", userID, "conn", conn.ID())
}

// Unregister removes userID's entry. No-op if absent.
func (r *Registry) Unregister(userID int64) {
	r.mu.Lock()
	_, ok := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()

	if ok {
		r.logger.Info("presence: user offline", "user_id", userID)
	}
}

// UnregisterConn removes userID's entry only if conn is still the current
// one, and reports whether it did.
func (r *Registry) UnregisterConn(userID int64, conn Conn) bool {
	r.mu.Lock()
	cur, ok := r.entries[userID]
	if !ok || cur.conn != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, userID)
	r.mu.Unlock()

	r.logger.Info("presence: user offline", "user_id", userID, "conn", conn.ID())
	return true
}

// IsOnline reports whether userID has a registered connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[userID]
	return ok
}

// SendTo pushes payload to userID's live connection. It returns false when
// the user has no entry or the send fails; failures are logged, never raised.
func (r *Registry) SendTo(userID int64, payload []byte) bool {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("presence: send skipped, user offline", "user_id", userID)
		return false
	}

	if err := e.conn.Send(payload); err != nil {
		derr := &DeliveryError{UserID: userID, ConnID: e.conn.ID(), Err: err}
		r.logger.Warn("presence: send failed", "err", derr)
		return false
	}
	return true
}

// OnlineCount returns the number of users with a registered connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns all registered users, most recently connected first.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for uid, e := range r.entries {
		out = append(out, Entry{UserID: uid, ConnID: e.conn.ID(), ConnectedAt: e.connectedAt})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.After(out[j].ConnectedAt)
	})
	return out
}

// Close empties the registry and closes every registered connection.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[int64]entry)
	r.mu.Unlock()

	for uid, e := range entries {
		if err := e.conn.Close(); err != nil {
			r.logger.Warn("presence: close connection", "user_id", uid, "conn", e.conn.ID(), "err", err)
		}
	}
	if len(entries) > 0 {
		r.logger.Info("presence: registry closed", "connections", len(entries))
	}
}
