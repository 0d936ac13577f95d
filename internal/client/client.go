// Package client talks to a notifyd server over its REST and websocket APIs.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/notify/internal/model"
)

// NotifyClient is the receiver-facing API of a notifyd server.
type NotifyClient interface {
	ListMessages(ctx context.Context, req *ListMessagesRequest) (*model.MessagePage, error)
	MarkAsRead(ctx context.Context, messageID int64) error
	MarkAsReadBatch(ctx context.Context, messageIDs []int64) (int, error)
	MarkAllAsRead(ctx context.Context) (int, error)
	DeleteMessage(ctx context.Context, messageID int64) error
	UnreadCount(ctx context.Context) (int, error)
	UnreadCountByType(ctx context.Context) (map[string]int, error)
	OnlineCount(ctx context.Context) (int, error)
	Close() error
}

// ListMessagesRequest holds the optional filters of ListMessages.
type ListMessagesRequest struct {
	Type      string // kind name or code, e.g. "LIKE"
	IsRead    *bool
	StartTime time.Time
	EndTime   time.Time
	Page      int
	PageSize  int
	Sort      string
}

// Health is the response of GET /v1/health.
type Health struct {
	Status   string         `json:"status"`
	Online   int            `json:"online"`
	Dispatch map[string]int `json:"dispatch,omitempty"`
}

// PresenceEntry is one online user as reported by GET /v1/internal/presence.
type PresenceEntry struct {
	UserID      int64     `json:"user_id"`
	ConnID      string    `json:"conn_id"`
	ConnectedAt time.Time `json:"connected_at"`
}
