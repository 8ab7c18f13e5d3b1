package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
)

// DefaultIPDRetention is the queue length IPD rooms are trimmed to after
// every push.
const DefaultIPDRetention = 200

// RetentionPolicy maps a namespace to the number of most recent entries its
// room queues keep. Zero or a missing entry means unbounded.
type RetentionPolicy map[domain.Namespace]int

// DefaultRetention trims the high-churn IPD rooms and leaves the general
// queue unbounded.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{
		domain.NamespaceQueue:  0,
		domain.NamespaceWard:   DefaultIPDRetention,
		domain.NamespaceDoctor: DefaultIPDRetention,
		domain.NamespaceNurse:  DefaultIPDRetention,
	}
}

// EventPublisher pushes serialized domain events onto room queues.
type EventPublisher struct {
	store     ports.QueueStore
	retention RetentionPolicy
	metrics   ports.RelayMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// Ensure EventPublisher implements the ports.EventPublisher interface.
var _ ports.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher creates a new event publisher
func NewEventPublisher(
	store ports.QueueStore,
	retention RetentionPolicy,
	metrics ports.RelayMetrics,
	logger *slog.Logger,
) *EventPublisher {
	if retention == nil {
		retention = DefaultRetention()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &EventPublisher{
		store:     store,
		retention: retention,
		metrics:   metrics,
		logger:    logger.With("component", "event_publisher"),
		now:       time.Now,
	}
}

// Publish serializes event and appends it to the queue of key.
// The returned error reports queue store failures only; a room without
// listeners is not an error.
func (p *EventPublisher) Publish(ctx context.Context, key domain.RoomKey, event domain.Event) error {
	ref, err := domain.ParseRoomKey(string(key))
	if err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidEvent, err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidEvent, err)
	}

	logCtx := logging.WithRoom(logging.WithNamespace(ctx, string(ref.Namespace)), string(key))

	if err := p.store.Push(ctx, string(key), payload); err != nil {
		p.metrics.PublishFailed(ref.Namespace)
		p.logger.WarnContext(logCtx, "failed to push event, event dropped",
			"event_type", event.Type,
			"error", err,
		)
		return fmt.Errorf("%w: %w", apperrors.ErrQueueUnavailable, err)
	}
	p.metrics.EventPublished(ref.Namespace)

	if keep := p.retention[ref.Namespace]; keep > 0 {
		// The push already succeeded; a failed trim only delays eviction.
		if err := p.store.Trim(ctx, string(key), keep); err != nil {
			p.logger.WarnContext(logCtx, "failed to trim room queue",
				"keep", keep,
				"error", err,
			)
		}
	}

	p.logger.DebugContext(logCtx, "event published", "event_type", event.Type)
	return nil
}

// PublishAll issues one independent push per key. A failing key does not
// prevent the remaining pushes; all failures are joined.
func (p *EventPublisher) PublishAll(ctx context.Context, event domain.Event, keys ...domain.RoomKey) error {
	if len(keys) == 0 {
		return apperrors.ErrNoRooms
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}

	var errs []error
	for _, key := range keys {
		if err := p.Publish(ctx, key, event); err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
