// Package cache holds short-lived unread-count snapshots per receiver.
//
// A snapshot is the by-type unread map. Total unread is derived from the
// same snapshot, so a cached total always equals the sum of the cached
// per-type counts. Every read-state change invalidates the receiver's entry;
// a missed invalidation is bounded by the entry TTL.
//
// Invalidate also bumps a per-receiver generation. A reader takes the
// generation before counting and passes it to Set, which writes nothing if
// an invalidation happened in between. A count taken before a concurrent
// insert therefore never outlives that insert's invalidation.
package cache

import (
	"context"
	"time"

	"github.com/alfredjeanlab/notify/internal/model"
)

// DefaultTTL is how long a snapshot lives without an invalidation.
const DefaultTTL = 5 * time.Minute

// UnreadCache stores per-receiver unread snapshots.
type UnreadCache interface {
	// Get returns the cached snapshot and whether one was present.
	Get(ctx context.Context, receiverID int64) (model.UnreadByType, bool, error)
	// Generation returns the receiver's invalidation counter.
	Generation(ctx context.Context, receiverID int64) (int64, error)
	// Set stores counts only if the generation still equals gen.
	Set(ctx context.Context, receiverID, gen int64, counts model.UnreadByType) error
	Invalidate(ctx context.Context, receiverID int64) error
	Close() error
}

// NoopCache never holds anything (used when Redis is not configured).
type NoopCache struct{}

func (NoopCache) Get(context.Context, int64) (model.UnreadByType, bool, error) {
	return nil, false, nil
}
func (NoopCache) Generation(context.Context, int64) (int64, error)            { return 0, nil }
func (NoopCache) Set(context.Context, int64, int64, model.UnreadByType) error { return nil }
func (NoopCache) Invalidate(context.Context, int64) error                     { return nil }
func (NoopCache) Close() error                                                { return nil }
