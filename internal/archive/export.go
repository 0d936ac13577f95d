// Package archive periodically exports newly created messages as JSONL.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/notify/internal/model"
	"github.com/alfredjeanlab/notify/internal/store"
)

// DefaultBatchSize is the page size used when scanning the store.
const DefaultBatchSize = 500

// header is the first JSONL record of every export.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	FirstID      int64     `json:"first_id"`
	LastID       int64     `json:"last_id"`
	MessageCount int       `json:"message_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string         `json:"type"`
	Data *model.Message `json:"data"`
}

// Result describes one export.
type Result struct {
	FirstID int64
	LastID  int64
	Count   int
}

// Collect reads up to limit messages with id > afterID, in id order.
// limit <= 0 reads everything.
func Collect(ctx context.Context, s store.Store, afterID int64, limit int) ([]*model.Message, error) {
	var out []*model.Message
	cursor := afterID
	for limit <= 0 || len(out) < limit {
		batch := DefaultBatchSize
		if limit > 0 && limit-len(out) < batch {
			batch = limit - len(out)
		}
		msgs, err := s.ListMessagesAfter(ctx, cursor, batch)
		if err != nil {
			return nil, fmt.Errorf("list messages after %d: %w", cursor, err)
		}
		out = append(out, msgs...)
		if len(msgs) < batch {
			break
		}
		cursor = msgs[len(msgs)-1].ID
	}
	return out, nil
}

// ExportJSONL writes a header followed by one record per message to w.
func ExportJSONL(w io.Writer, msgs []*model.Message) (Result, error) {
	var res Result
	if len(msgs) > 0 {
		res = Result{FirstID: msgs[0].ID, LastID: msgs[len(msgs)-1].ID, Count: len(msgs)}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		FirstID:      res.FirstID,
		LastID:       res.LastID,
		MessageCount: res.Count,
	}); err != nil {
		return Result{}, fmt.Errorf("encode header: %w", err)
	}

	for _, m := range msgs {
		if err := enc.Encode(record{Type: "message", Data: m}); err != nil {
			return Result{}, fmt.Errorf("encode message %d: %w", m.ID, err)
		}
	}
	return res, nil
}
