package store

import (
	"context"
	"errors"

	"github.com/roomlink/realtime/src/types"
)

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("message store unavailable")

// MessageStore persists chat messages. The realtime layer writes to it
// best-effort and asynchronously relative to live broadcasts; the store is
// the source of truth, the live layer a notification path.
type MessageStore interface {
	// SaveMessage persists an envelope and returns its message id.
	SaveMessage(ctx context.Context, env types.Envelope) (string, error)
	// LoadRecentMessages returns up to limit messages for a chat,
	// most recent last.
	LoadRecentMessages(ctx context.Context, chatID string, limit int) ([]types.Envelope, error)
	// Close releases store resources.
	Close() error
}
