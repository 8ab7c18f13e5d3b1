package services_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lorrc/clinical-event-relay/internal/adapters/secondary/memory"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/mocks"
	"github.com/lorrc/clinical-event-relay/internal/core/services"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeFanout records deliveries per room.
type fakeFanout struct {
	ns       domain.Namespace
	mu       sync.Mutex
	rooms    []domain.RoomKey
	sockets  int
	received map[domain.RoomKey][]string
}

func newFakeFanout(ns domain.Namespace, sockets int, rooms ...domain.RoomKey) *fakeFanout {
	return &fakeFanout{ns: ns, rooms: rooms, sockets: sockets, received: map[domain.RoomKey][]string{}}
}

func (f *fakeFanout) Name() domain.Namespace { return f.ns }

func (f *fakeFanout) ActiveRooms() []domain.RoomKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RoomKey(nil), f.rooms...)
}

func (f *fakeFanout) Deliver(key domain.RoomKey, payload []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received[key] = append(f.received[key], string(payload))
	return f.sockets
}

func (f *fakeFanout) got(key domain.RoomKey) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received[key]...)
}

// failingStore fails pops for a single key.
type failingStore struct {
	*memory.QueueStore
	failKey string
}

func (s *failingStore) Pop(ctx context.Context, key string) ([]byte, bool, error) {
	if key == s.failKey {
		return nil, false, errors.New("connection reset")
	}
	return s.QueueStore.Pop(ctx, key)
}

func push(t *testing.T, store *memory.QueueStore, key domain.RoomKey, payloads ...string) {
	t.Helper()
	for _, p := range payloads {
		require.NoError(t, store.Push(context.Background(), string(key), []byte(p)))
	}
}

func TestDeliveryPoller_OneEntryPerRoomPerSweep(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQueueStore()
	fanout := newFakeFanout(domain.NamespaceWard, 2, "ipd_ward_H1_W2", "ipd_ward_H1_W3")
	poller := services.NewDeliveryPoller(services.DefaultPollerConfig(), store, fanout, nil, discardLogger)

	push(t, store, "ipd_ward_H1_W2", "e1", "e2", "e3")
	push(t, store, "ipd_ward_H1_W3", "x1")

	stats := poller.Sweep(ctx)
	assert.Equal(t, services.SweepStats{Rooms: 2, Popped: 2, Delivered: 4}, stats)
	assert.Equal(t, []string{"e1"}, fanout.got("ipd_ward_H1_W2"))
	assert.Equal(t, []string{"x1"}, fanout.got("ipd_ward_H1_W3"))

	poller.Sweep(ctx)
	poller.Sweep(ctx)
	assert.Equal(t, []string{"e1", "e2", "e3"}, fanout.got("ipd_ward_H1_W2"))
	assert.Equal(t, []string{"x1"}, fanout.got("ipd_ward_H1_W3"))

	stats = poller.Sweep(ctx)
	assert.Zero(t, stats.Popped)
}

func TestDeliveryPoller_InactiveRoomsKeepTheirBacklog(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQueueStore()
	fanout := newFakeFanout(domain.NamespaceQueue, 1, "H1_D5")
	poller := services.NewDeliveryPoller(services.DefaultPollerConfig(), store, fanout, nil, discardLogger)

	push(t, store, "H1_D6", "queued-while-away")

	poller.Sweep(ctx)

	n, err := store.Len(ctx, "H1_D6")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, fanout.got("H1_D6"))
}

func TestDeliveryPoller_PopFailureDoesNotAbortSweep(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewQueueStore()
	store := &failingStore{QueueStore: mem, failKey: "ipd_nurse_H1_W2"}
	fanout := newFakeFanout(domain.NamespaceNurse, 1, "ipd_nurse_H1_W2", "ipd_nurse_H1_W3")
	poller := services.NewDeliveryPoller(services.DefaultPollerConfig(), store, fanout, nil, discardLogger)

	push(t, mem, "ipd_nurse_H1_W2", "lost-for-now")
	push(t, mem, "ipd_nurse_H1_W3", "ok")

	stats := poller.Sweep(ctx)

	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Popped)
	assert.Equal(t, []string{"ok"}, fanout.got("ipd_nurse_H1_W3"))
}

func TestDeliveryPoller_PopFailureIsLoggedWithRoomContext(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "warn", Output: &buf, ServiceName: "relay-test"})

	mem := memory.NewQueueStore()
	store := &failingStore{QueueStore: mem, failKey: "ipd_nurse_H1_W2"}
	fanout := newFakeFanout(domain.NamespaceNurse, 1, "ipd_nurse_H1_W2")
	poller := services.NewDeliveryPoller(services.DefaultPollerConfig(), store, fanout, nil, logger)

	poller.Sweep(context.Background())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "failed to pop room queue", entry["msg"])
	assert.Equal(t, "delivery_poller", entry["component"])
	assert.Equal(t, "ipd_nurse", entry["namespace"])
	assert.Equal(t, "ipd_nurse_H1_W2", entry["room"])
	assert.Equal(t, "connection reset", entry["error"])
}

func TestDeliveryPoller_EntryWithoutListenersIsConsumed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQueueStore()
	fanout := newFakeFanout(domain.NamespaceDoctor, 0, "ipd_doctor_H1_D5")
	poller := services.NewDeliveryPoller(services.DefaultPollerConfig(), store, fanout, nil, discardLogger)

	push(t, store, "ipd_doctor_H1_D5", "e1")

	stats := poller.Sweep(ctx)

	assert.Equal(t, 1, stats.Popped)
	assert.Zero(t, stats.Delivered)
	n, err := store.Len(ctx, "ipd_doctor_H1_D5")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeliveryPoller_NoActiveRooms(t *testing.T) {
	store := mocks.NewMockQueueStore()
	fanout := mocks.NewMockRoomFanout()
	fanout.On("Name").Return(domain.NamespaceQueue)
	fanout.On("ActiveRooms").Return(nil)

	poller := services.NewDeliveryPoller(services.DefaultPollerConfig(), store, fanout, nil, discardLogger)
	stats := poller.Sweep(context.Background())

	assert.Zero(t, stats.Rooms)
	store.AssertNotCalled(t, "Pop", mock.Anything, mock.Anything)
}

func TestDeliveryPoller_BoundedConcurrency(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQueueStore()

	var rooms []domain.RoomKey
	for i := 0; i < 20; i++ {
		key := domain.RoomKey(fmt.Sprintf("H1_D%d", i))
		rooms = append(rooms, key)
		push(t, store, key, "e")
	}
	fanout := newFakeFanout(domain.NamespaceQueue, 1, rooms...)
	cfg := services.PollerConfig{Interval: time.Second, Concurrency: 3, PopTimeout: time.Second}
	poller := services.NewDeliveryPoller(cfg, store, fanout, nil, discardLogger)

	stats := poller.Sweep(ctx)

	assert.Equal(t, 20, stats.Popped)
	for _, room := range rooms {
		assert.Len(t, fanout.got(room), 1)
	}
}

func TestDeliveryPoller_StartStop(t *testing.T) {
	store := memory.NewQueueStore()
	fanout := newFakeFanout(domain.NamespaceWard, 1, "ipd_ward_H1_W2")
	cfg := services.PollerConfig{Interval: 10 * time.Millisecond, Concurrency: 4, PopTimeout: time.Second}
	poller := services.NewDeliveryPoller(cfg, store, fanout, nil, discardLogger)

	require.NoError(t, poller.Start(context.Background()))

	push(t, store, "ipd_ward_H1_W2", "e1", "e2")

	assert.Eventually(t, func() bool {
		return len(fanout.got("ipd_ward_H1_W2")) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"e1", "e2"}, fanout.got("ipd_ward_H1_W2"))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, poller.Stop(stopCtx))
}
