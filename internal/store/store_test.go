package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap("op", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}

	cause := errors.New("connection refused")
	err := Wrap("count unread", cause)
	if !IsStorageError(err) {
		t.Fatalf("expected StorageError, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Error("StorageError should unwrap to its cause")
	}
	if err.Error() != "storage: count unread: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}

	// Already-wrapped errors are not wrapped twice.
	outer := Wrap("list messages", fmt.Errorf("context: %w", err))
	var se *StorageError
	if !errors.As(outer, &se) || se.Op != "count unread" {
		t.Errorf("rewrapped op = %q, want %q", se.Op, "count unread")
	}
}

func TestIsStorageError(t *testing.T) {
	if IsStorageError(errors.New("plain")) {
		t.Error("plain error reported as storage error")
	}
	if IsStorageError(nil) {
		t.Error("nil reported as storage error")
	}
}
