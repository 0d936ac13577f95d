package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/notify/internal/model"
)

// Store defines the persistence interface for notification messages.
//
// Every mutating method is keyed by receiver: an id that does not exist or
// belongs to another receiver is a silent no-op, never an error.
type Store interface {
	// Messages
	InsertMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, receiverID int64, filter model.MessageFilter) ([]*model.Message, int, error) // returns messages, total count, error
	DeleteMessage(ctx context.Context, messageID, receiverID int64) error

	// Read state
	MarkAsRead(ctx context.Context, messageID, receiverID int64) error
	MarkAsReadBatch(ctx context.Context, messageIDs []int64, receiverID int64) (int, error)
	MarkAllAsRead(ctx context.Context, receiverID int64) (int, error)

	// Unread accounting
	CountUnread(ctx context.Context, receiverID int64) (int, error)
	CountUnreadByType(ctx context.Context, receiverID int64) (model.UnreadByType, error)

	// Sender profiles
	GetSenders(ctx context.Context, userIDs []int64) (map[int64]model.Sender, error)

	// Archive cursor
	ListMessagesAfter(ctx context.Context, afterID int64, limit int) ([]*model.Message, error)

	// Lifecycle
	Close() error
}

// StorageError wraps a failure of the backing store. Callers treat it as
// retryable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Wrap returns err wrapped in a *StorageError for op, or nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
