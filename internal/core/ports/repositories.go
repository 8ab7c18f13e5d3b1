package ports

import "context"

// QueueStore is the port for the external list store that decouples
// producers from the delivery pollers. Entries are opaque byte payloads,
// appended at the tail and consumed from the head of a named list.
type QueueStore interface {
	// Push appends a payload to the tail of the list stored under key.
	Push(ctx context.Context, key string, payload []byte) error
	// Pop removes and returns the head of the list. ok is false when the
	// list is empty or missing.
	Pop(ctx context.Context, key string) (payload []byte, ok bool, err error)
	// Trim keeps only the most recent keep entries of the list.
	Trim(ctx context.Context, key string, keep int) error
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
