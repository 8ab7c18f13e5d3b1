package websocket

import (
	"sort"
	"sync"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
)

// RoomRegistry tracks which rooms of a namespace have members. Each join
// acquires a reference and each leave releases one; a room disappears when
// its last reference is released.
type RoomRegistry struct {
	mu     sync.Mutex
	counts map[domain.RoomKey]int
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{counts: make(map[domain.RoomKey]int)}
}

// Acquire adds a reference to key and returns the new member count.
func (r *RoomRegistry) Acquire(key domain.RoomKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[key]++
	return r.counts[key]
}

// Release drops a reference to key and returns the remaining member count.
// Releasing an unknown key is a no-op.
func (r *RoomRegistry) Release(key domain.RoomKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.counts[key]
	if !ok {
		return 0
	}
	if n <= 1 {
		delete(r.counts, key)
		return 0
	}
	r.counts[key] = n - 1
	return n - 1
}

// Snapshot returns the active rooms in sorted order.
func (r *RoomRegistry) Snapshot() []domain.RoomKey {
	r.mu.Lock()
	keys := make([]domain.RoomKey, 0, len(r.counts))
	for key := range r.counts {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Members returns the reference count of key; zero means the room is not
// active.
func (r *RoomRegistry) Members(key domain.RoomKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

// Len returns the number of active rooms.
func (r *RoomRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counts)
}
