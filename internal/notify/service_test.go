package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/alfredjeanlab/notify/internal/dispatch"
	"github.com/alfredjeanlab/notify/internal/model"
	"github.com/alfredjeanlab/notify/internal/store"
	"github.com/alfredjeanlab/notify/internal/store/memory"
)

// mapCache is an in-process UnreadCache with the same generation rules as
// the Redis cache.
type mapCache struct {
	mu      sync.Mutex
	entries map[int64]model.UnreadByType
	gens    map[int64]int64
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[int64]model.UnreadByType), gens: make(map[int64]int64)}
}

func (c *mapCache) Get(_ context.Context, id int64) (model.UnreadByType, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[id]
	return v, ok, nil
}

func (c *mapCache) Generation(_ context.Context, id int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id], nil
}

func (c *mapCache) Set(_ context.Context, id, gen int64, counts model.UnreadByType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] != gen {
		return nil
	}
	c.sets++
	c.entries[id] = counts
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[id]++
	delete(c.entries, id)
	return nil
}

func (c *mapCache) Close() error { return nil }

type offline struct{}

func (offline) IsOnline(int64) bool       { return false }
func (offline) SendTo(int64, []byte) bool { return false }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var note = model.Target{ID: 42, Type: model.TargetNote}

// newTestService returns a service whose Publish goes through a real
// dispatcher. Call drain to wait for published events to land.
func newTestService(t *testing.T) (svc *Service, s *memory.Store, c *mapCache, drain func()) {
	t.Helper()
	s = memory.New()
	c = newMapCache()
	d := dispatch.New(s, offline{}, c, nil, dispatch.Config{Workers: 2}, discardLogger())
	d.Start(context.Background())
	svc = New(s, d, c, nil, discardLogger())
	var once sync.Once
	drain = func() { once.Do(d.Stop) }
	t.Cleanup(drain)
	return svc, s, c, drain
}

func TestPublish_OfflineReceiverListsUnread(t *testing.T) {
	svc, _, _, drain := newTestService(t)
	svc.Publish(model.NewCommentEvent(1, 2, note, "nice note"))
	drain()

	page, err := svc.List(context.Background(), 2, model.MessageFilter{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("total=%d items=%d, want 1/1", page.Total, len(page.Items))
	}
	item := page.Items[0]
	if item.IsRead || item.Type != model.KindComment || item.Content != "nice note" {
		t.Errorf("unexpected item: %+v", item)
	}
}

func TestList_EnrichesSenders(t *testing.T) {
	svc, s, _, drain := newTestService(t)
	s.PutUser(model.Sender{UserID: 1, Username: "alice"})
	svc.Publish(model.NewLikeEvent(1, 2, note, ""))
	svc.Publish(model.NewLikeEvent(3, 2, note, ""))
	svc.Publish(model.NewSystemEvent(2, model.Target{}, "notice"))
	drain()

	page, err := svc.List(context.Background(), 2, model.MessageFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Page != 1 || page.PageSize != model.DefaultPageSize || page.TotalPages != 1 {
		t.Errorf("unexpected page metadata: %+v", page)
	}
	bySender := map[int64]*model.Sender{}
	for _, it := range page.Items {
		if it.Sender == nil {
			if it.Type != model.KindSystem {
				t.Errorf("non-system message without sender: %+v", it)
			}
			continue
		}
		bySender[it.Sender.UserID] = it.Sender
	}
	if bySender[1] == nil || bySender[1].Username != "alice" {
		t.Errorf("sender 1 not enriched: %+v", bySender[1])
	}
	if bySender[3] == nil || bySender[3].Username != "" {
		t.Errorf("unknown sender should fall back to id only: %+v", bySender[3])
	}
}

func TestList_InvalidFilter(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.List(context.Background(), 2, model.MessageFilter{Page: 1, PageSize: 1000})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestList_PageBounds(t *testing.T) {
	ctx := context.Background()
	svc, _, _, drain := newTestService(t)
	svc.Publish(model.NewLikeEvent(1, 2, note, ""))
	drain()

	_, err := svc.List(ctx, 2, model.MessageFilter{Page: math.MaxInt/100 + 2, PageSize: 100})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("overflowing page: expected ValidationError, got %v", err)
	}

	page, err := svc.List(ctx, 2, model.MessageFilter{Page: model.MaxPage, PageSize: model.MaxPageSize})
	if err != nil {
		t.Fatalf("last allowed page: %v", err)
	}
	if len(page.Items) != 0 || page.Total != 1 || page.Page != model.MaxPage {
		t.Errorf("unexpected page: %+v", page)
	}
}

// gatedStore blocks the first CountUnreadByType after it has read the
// store, until release is closed.
type gatedStore struct {
	*memory.Store
	once    sync.Once
	counted chan struct{}
	release chan struct{}
}

func (g *gatedStore) CountUnreadByType(ctx context.Context, receiverID int64) (model.UnreadByType, error) {
	counts, err := g.Store.CountUnreadByType(ctx, receiverID)
	g.once.Do(func() {
		close(g.counted)
		<-g.release
	})
	return counts, err
}

func TestUnreadCountByType_InsertDuringCountNotCached(t *testing.T) {
	ctx := context.Background()
	gs := &gatedStore{Store: memory.New(), counted: make(chan struct{}), release: make(chan struct{})}
	c := newMapCache()
	svc := New(gs, nil, c, nil, discardLogger())

	done := make(chan model.UnreadByType)
	go func() {
		counts, err := svc.UnreadCountByType(ctx, 2)
		if err != nil {
			t.Error(err)
		}
		done <- counts
	}()

	<-gs.counted
	// What the dispatcher does for a new message: persist, then invalidate.
	if err := gs.InsertMessage(ctx, model.NewLikeEvent(1, 2, note, "").ToMessage()); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate(ctx, 2); err != nil {
		t.Fatal(err)
	}
	close(gs.release)

	if stale := <-done; stale.Total() != 0 {
		t.Fatalf("in-flight count = %v, want the pre-insert snapshot", stale)
	}
	if _, ok, _ := c.Get(ctx, 2); ok {
		t.Error("pre-insert snapshot was cached after the invalidation")
	}
	if n, err := svc.UnreadCount(ctx, 2); err != nil || n != 1 {
		t.Errorf("UnreadCount = (%d, %v), want (1, nil)", n, err)
	}
}

func TestUnreadAccounting(t *testing.T) {
	ctx := context.Background()
	svc, _, c, drain := newTestService(t)
	svc.Publish(model.NewLikeEvent(1, 2, note, ""))
	svc.Publish(model.NewLikeEvent(3, 2, note, ""))
	svc.Publish(model.NewCommentEvent(1, 2, note, "c"))
	drain()

	byType, err := svc.UnreadCountByType(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 2 || byType[model.KindLike] != 2 || byType[model.KindComment] != 1 {
		t.Errorf("UnreadCountByType = %v, want {LIKE:2, COMMENT:1}", byType)
	}
	total, err := svc.UnreadCount(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != byType.Total() {
		t.Errorf("UnreadCount = %d, sum of by-type = %d", total, byType.Total())
	}
	if c.sets != 1 {
		t.Errorf("cache sets = %d, want 1", c.sets)
	}

	n, err := svc.MarkAllAsRead(ctx, 2)
	if err != nil || n != 3 {
		t.Fatalf("MarkAllAsRead = (%d, %v), want (3, nil)", n, err)
	}
	total, err = svc.UnreadCount(ctx, 2)
	if err != nil || total != 0 {
		t.Errorf("UnreadCount after MarkAllAsRead = (%d, %v), want 0", total, err)
	}

	n, err = svc.MarkAllAsRead(ctx, 2)
	if err != nil || n != 0 {
		t.Errorf("repeat MarkAllAsRead = (%d, %v), want (0, nil)", n, err)
	}
}

func TestReadStateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	svc, s, _, drain := newTestService(t)
	svc.Publish(model.NewLikeEvent(1, 2, note, ""))
	svc.Publish(model.NewLikeEvent(1, 2, note, ""))
	drain()

	if n, _ := svc.UnreadCount(ctx, 2); n != 2 {
		t.Fatalf("UnreadCount = %d, want 2", n)
	}
	if _, err := svc.UnreadCountByType(ctx, 2); err != nil { // prime the cache
		t.Fatal(err)
	}

	msgs, _, _ := s.ListMessages(ctx, 2, model.MessageFilter{}.WithDefaults())
	if err := svc.MarkAsRead(ctx, msgs[0].ID, 2); err != nil {
		t.Fatal(err)
	}
	if n, _ := svc.UnreadCount(ctx, 2); n != 1 {
		t.Errorf("UnreadCount after MarkAsRead = %d, want 1", n)
	}

	if err := svc.Delete(ctx, msgs[1].ID, 2); err != nil {
		t.Fatal(err)
	}
	if n, _ := svc.UnreadCount(ctx, 2); n != 0 {
		t.Errorf("UnreadCount after Delete = %d, want 0", n)
	}
}

func TestMarkAsRead_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, s, _, drain := newTestService(t)
	svc.Publish(model.NewLikeEvent(1, 2, note, ""))
	drain()

	if err := svc.MarkAsRead(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	first, _ := s.Get(1)
	if err := svc.MarkAsRead(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	second, _ := s.Get(1)
	if !first.IsRead || !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("repeat MarkAsRead changed state: %+v -> %+v", first, second)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	ctx := context.Background()
	svc, s, _, drain := newTestService(t)
	svc.Publish(model.NewLikeEvent(1, 2, note, ""))
	drain()

	const intruder = 3
	if err := svc.MarkAsRead(ctx, 1, intruder); err != nil {
		t.Fatal(err)
	}
	if n, err := svc.MarkAsReadBatch(ctx, []int64{1}, intruder); err != nil || n != 0 {
		t.Fatalf("MarkAsReadBatch by intruder = (%d, %v)", n, err)
	}
	if err := svc.Delete(ctx, 1, intruder); err != nil {
		t.Fatal(err)
	}

	m, ok := s.Get(1)
	if !ok || m.IsRead {
		t.Errorf("intruder changed the message: ok=%v %+v", ok, m)
	}
	page, _ := svc.List(ctx, intruder, model.MessageFilter{})
	if page.Total != 0 {
		t.Error("intruder can list another receiver's messages")
	}
}

func TestMarkAsReadBatch(t *testing.T) {
	ctx := context.Background()
	svc, _, _, drain := newTestService(t)
	for i := 0; i < 3; i++ {
		svc.Publish(model.NewLikeEvent(1, 2, note, ""))
	}
	drain()

	n, err := svc.MarkAsReadBatch(ctx, []int64{1, 2}, 2)
	if err != nil || n != 2 {
		t.Fatalf("MarkAsReadBatch = (%d, %v), want (2, nil)", n, err)
	}
	if total, _ := svc.UnreadCount(ctx, 2); total != 1 {
		t.Errorf("UnreadCount = %d, want 1", total)
	}
	if n, err := svc.MarkAsReadBatch(ctx, nil, 2); err != nil || n != 0 {
		t.Errorf("empty batch = (%d, %v)", n, err)
	}
}

func TestStorageErrorsSurface(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newTestService(t)
	s.FailWith(errors.New("database down"))

	if _, err := svc.UnreadCount(ctx, 2); !store.IsStorageError(err) {
		t.Errorf("UnreadCount err = %v, want StorageError", err)
	}
	if _, err := svc.List(ctx, 2, model.MessageFilter{}); !store.IsStorageError(err) {
		t.Errorf("List err = %v, want StorageError", err)
	}
	if err := svc.MarkAsRead(ctx, 1, 2); !store.IsStorageError(err) {
		t.Errorf("MarkAsRead err = %v, want StorageError", err)
	}
}
