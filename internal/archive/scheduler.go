package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/notify/internal/store"
)

// Destination is an archive target.
type Destination interface {
	// Write stores the JSONL payload under name.
	Write(ctx context.Context, name string, data []byte) error
}

// Options tunes a Scheduler. Zero values use the defaults.
type Options struct {
	// StartAfter is the id cursor the first export resumes from.
	StartAfter int64
	// MaxPerExport caps the messages in one export. Zero means no cap.
	MaxPerExport int
	// Prefix is prepended to every object name.
	Prefix string
}

// Scheduler exports messages created since the last successful export to
// one or more destinations at a fixed interval. The cursor only advances
// when every destination accepted the export, so a failed write is retried
// on the next tick.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	opts         Options
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	cursor int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		opts:         opts,
		logger:       logger,
		now:          time.Now,
		cursor:       opts.StartAfter,
	}
}

// Start begins periodic export. It runs an initial export immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Cursor returns the id of the last message exported.
func (s *Scheduler) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) run(ctx context.Context) {
	s.ExportOnce(ctx) //nolint:errcheck

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExportOnce(ctx) //nolint:errcheck
		}
	}
}

// ExportOnce exports everything after the cursor. Nothing is written when
// there are no new messages.
func (s *Scheduler) ExportOnce(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := Collect(ctx, s.store, s.cursor, s.opts.MaxPerExport)
	if err != nil {
		s.logger.Error("archive export failed", "err", err)
		return Result{}, err
	}
	if len(msgs) == 0 {
		return Result{}, nil
	}

	var buf bytes.Buffer
	res, err := ExportJSONL(&buf, msgs)
	if err != nil {
		s.logger.Error("archive export failed", "err", err)
		return Result{}, err
	}

	name := s.objectName(res)
	var failed int
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, name, buf.Bytes()); err != nil {
			failed++
			s.logger.Error("archive destination write failed", "destination", fmt.Sprintf("%d", i), "err", err)
		}
	}
	if failed > 0 {
		return res, fmt.Errorf("archive: %d of %d destinations failed", failed, len(s.destinations))
	}

	s.cursor = res.LastID
	s.logger.Info("archive completed",
		"name", name,
		"messages", res.Count,
		"last_id", res.LastID,
		"bytes", buf.Len(),
	)
	return res, nil
}

func (s *Scheduler) objectName(res Result) string {
	return fmt.Sprintf("%smessages-%s-%d-%d.jsonl",
		s.opts.Prefix,
		s.now().UTC().Format("20060102T150405Z"),
		res.FirstID,
		res.LastID,
	)
}
