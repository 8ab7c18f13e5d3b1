package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
)

// PollerConfig holds delivery poller configuration.
type PollerConfig struct {
	Interval    time.Duration // Sweep interval (default: 1s)
	Concurrency int           // Max rooms popped in parallel (default: 32)
	PopTimeout  time.Duration // Per-pop timeout (default: 500ms)
}

// DefaultPollerConfig returns the relay defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:    time.Second,
		Concurrency: 32,
		PopTimeout:  500 * time.Millisecond,
	}
}

// SweepStats summarizes one pass over the active rooms of a namespace.
type SweepStats struct {
	Rooms     int
	Popped    int
	Delivered int
	Errors    int
}

// DeliveryPoller moves queued events to connected sockets. Every tick it
// pops at most one entry per active room of its namespace and fans it out
// to the room's sockets.
type DeliveryPoller struct {
	cfg     PollerConfig
	store   ports.QueueStore
	rooms   ports.RoomFanout
	metrics ports.RelayMetrics
	logger  *slog.Logger
	logCtx  context.Context

	sweepMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDeliveryPoller creates a poller for a single namespace.
func NewDeliveryPoller(
	cfg PollerConfig,
	store ports.QueueStore,
	rooms ports.RoomFanout,
	metrics ports.RelayMetrics,
	logger *slog.Logger,
) *DeliveryPoller {
	defaults := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = defaults.PopTimeout
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryPoller{
		cfg:     cfg,
		store:   store,
		rooms:   rooms,
		metrics: metrics,
		logger:  logger.With("component", "delivery_poller"),
		logCtx:  logging.WithNamespace(context.Background(), string(rooms.Name())),
	}
}

// Start begins the polling loop.
func (p *DeliveryPoller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.InfoContext(p.logCtx, "delivery poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)
	return nil
}

// Stop cancels the loop and waits for the sweep in flight to finish.
func (p *DeliveryPoller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.InfoContext(p.logCtx, "delivery poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *DeliveryPoller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.safeSweep()
		}
	}
}

// safeSweep keeps the loop alive when a sweep panics.
func (p *DeliveryPoller) safeSweep() {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(p.logCtx, p.logger, r)
		}
	}()
	p.Sweep(p.ctx)
}

// Sweep runs one delivery pass. Sweeps never overlap: a call made while
// another is running waits for it to finish.
func (p *DeliveryPoller) Sweep(ctx context.Context) SweepStats {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()

	start := time.Now()
	ns := p.rooms.Name()
	ctx = logging.WithNamespace(ctx, string(ns))
	rooms := p.rooms.ActiveRooms()
	p.metrics.ActiveRooms(ns, len(rooms))

	stats := SweepStats{Rooms: len(rooms)}
	if len(rooms) == 0 {
		return stats
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var popped, delivered, failed atomic.Int64

	for _, room := range rooms {
		wg.Add(1)
		go func(room domain.RoomKey) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			roomCtx := logging.WithRoom(ctx, string(room))
			sockets, ok, err := p.deliverNext(roomCtx, room)
			if err != nil {
				p.metrics.PopFailed(ns)
				p.logger.WarnContext(roomCtx, "failed to pop room queue", "error", err)
				failed.Add(1)
				return
			}
			if !ok {
				return
			}
			popped.Add(1)
			delivered.Add(int64(sockets))
		}(room)
	}
	wg.Wait()

	stats.Popped = int(popped.Load())
	stats.Delivered = int(delivered.Load())
	stats.Errors = int(failed.Load())

	duration := time.Since(start)
	p.metrics.SweepCompleted(ns, duration)
	if stats.Popped > 0 || stats.Errors > 0 {
		p.logger.DebugContext(ctx, "sweep complete",
			"rooms", stats.Rooms,
			"popped", stats.Popped,
			"delivered", stats.Delivered,
			"errors", stats.Errors,
			"duration", duration,
		)
	}
	return stats
}

// deliverNext pops the head of a room queue and fans it out. ok is false
// when the queue was empty.
func (p *DeliveryPoller) deliverNext(ctx context.Context, room domain.RoomKey) (int, bool, error) {
	popCtx, cancel := context.WithTimeout(ctx, p.cfg.PopTimeout)
	defer cancel()

	payload, ok, err := p.store.Pop(popCtx, string(room))
	if err != nil || !ok {
		return 0, ok, err
	}

	sockets := p.rooms.Deliver(room, payload)
	p.metrics.Delivered(p.rooms.Name(), sockets)
	if sockets == 0 {
		// Everyone left between the snapshot and the pop.
		p.logger.DebugContext(ctx, "popped entry had no listeners")
	}
	return sockets, true, nil
}
