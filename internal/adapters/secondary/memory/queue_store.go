// Package memory provides an in-process queue store for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/lorrc/clinical-event-relay/internal/core/ports"
)

// QueueStore keeps room queues in process memory. Entries do not survive a
// restart and are not shared between relay instances.
type QueueStore struct {
	mu    sync.Mutex
	lists map[string][][]byte
}

var _ ports.QueueStore = (*QueueStore)(nil)

// NewQueueStore creates an empty in-memory queue store.
func NewQueueStore() *QueueStore {
	return &QueueStore{lists: make(map[string][][]byte)}
}

func (s *QueueStore) Push(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := make([]byte, len(payload))
	copy(entry, payload)

	s.mu.Lock()
	s.lists[key] = append(s.lists[key], entry)
	s.mu.Unlock()
	return nil
}

func (s *QueueStore) Pop(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	if len(list) == 0 {
		return nil, false, nil
	}

	head := list[0]
	list[0] = nil
	if len(list) == 1 {
		// An empty list does not exist, same as in Redis.
		delete(s.lists, key)
	} else {
		s.lists[key] = list[1:]
	}
	return head, true, nil
}

func (s *QueueStore) Trim(ctx context.Context, key string, keep int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	if keep <= 0 {
		delete(s.lists, key)
		return nil
	}
	if len(list) > keep {
		trimmed := make([][]byte, keep)
		copy(trimmed, list[len(list)-keep:])
		s.lists[key] = trimmed
	}
	return nil
}

func (s *QueueStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of entries queued under key.
func (s *QueueStore) Len(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}
