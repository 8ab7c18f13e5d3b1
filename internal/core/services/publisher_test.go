package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
	"github.com/lorrc/clinical-event-relay/internal/core/mocks"
	"github.com/lorrc/clinical-event-relay/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func bedEvent() domain.Event {
	return domain.Event{
		Type:       domain.EventBedAvailabilityChanged,
		Data:       domain.BedAvailability{AvailableBeds: 3, TotalBeds: 10},
		HospitalID: "H1",
		WardID:     "W2",
	}
}

func TestEventPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("general queue is not trimmed", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		store.On("Push", ctx, "H1_D5", mock.AnythingOfType("[]uint8")).Return(nil)

		err := pub.Publish(ctx, "H1_D5", domain.Event{Type: domain.EventQueueUpdated, HospitalID: "H1"})

		require.NoError(t, err)
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "Trim", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ipd rooms are trimmed after push", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		store.On("Push", ctx, "ipd_ward_H1_W2", mock.Anything).Return(nil)
		store.On("Trim", ctx, "ipd_ward_H1_W2", services.DefaultIPDRetention).Return(nil)

		require.NoError(t, pub.Publish(ctx, "ipd_ward_H1_W2", bedEvent()))
		store.AssertExpectations(t)
	})

	t.Run("custom retention", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		retention := services.RetentionPolicy{domain.NamespaceQueue: 50}
		pub := services.NewEventPublisher(store, retention, nil, discardLogger)

		store.On("Push", ctx, "H1_D5", mock.Anything).Return(nil)
		store.On("Trim", ctx, "H1_D5", 50).Return(nil)

		require.NoError(t, pub.Publish(ctx, "H1_D5", domain.Event{Type: domain.EventQueueUpdated, HospitalID: "H1"}))
		store.AssertExpectations(t)
	})

	t.Run("payload is the serialized event", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		var pushed []byte
		store.On("Push", ctx, "ipd_nurse_H1_W2", mock.Anything).
			Run(func(args mock.Arguments) { pushed = args.Get(2).([]byte) }).
			Return(nil)
		store.On("Trim", ctx, "ipd_nurse_H1_W2", mock.Anything).Return(nil)

		event := bedEvent()
		event.Timestamp = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
		require.NoError(t, pub.Publish(ctx, "ipd_nurse_H1_W2", event))

		assert.JSONEq(t, `{
			"type": "BED_AVAILABILITY_CHANGED",
			"data": {"availableBeds": 3, "totalBeds": 10},
			"timestamp": "2024-03-01T09:30:00Z",
			"hospitalId": "H1",
			"wardId": "W2"
		}`, string(pushed))
	})

	t.Run("missing timestamp is stamped", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		var pushed []byte
		store.On("Push", ctx, "H1_D5", mock.Anything).
			Run(func(args mock.Arguments) { pushed = args.Get(2).([]byte) }).
			Return(nil)

		require.NoError(t, pub.Publish(ctx, "H1_D5", domain.Event{Type: domain.EventQueueUpdated, HospitalID: "H1"}))

		var decoded domain.Event
		require.NoError(t, json.Unmarshal(pushed, &decoded))
		assert.False(t, decoded.Timestamp.IsZero())
	})

	t.Run("store failure is reported", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		store.On("Push", ctx, "ipd_ward_H1_W2", mock.Anything).Return(errors.New("connection refused"))

		err := pub.Publish(ctx, "ipd_ward_H1_W2", bedEvent())

		assert.ErrorIs(t, err, apperrors.ErrQueueUnavailable)
		store.AssertNotCalled(t, "Trim", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("trim failure does not fail the publish", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		store.On("Push", ctx, "ipd_ward_H1_W2", mock.Anything).Return(nil)
		store.On("Trim", ctx, "ipd_ward_H1_W2", mock.Anything).Return(errors.New("timeout"))

		assert.NoError(t, pub.Publish(ctx, "ipd_ward_H1_W2", bedEvent()))
	})

	t.Run("invalid room key", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		err := pub.Publish(ctx, "ipd_ward_H1", bedEvent())

		assert.ErrorIs(t, err, apperrors.ErrInvalidRoomKey)
		store.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid event", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		err := pub.Publish(ctx, "H1_D5", domain.Event{HospitalID: "H1"})

		assert.ErrorIs(t, err, apperrors.ErrInvalidEvent)
		assert.ErrorIs(t, err, apperrors.ErrEventTypeRequired)
		store.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEventPublisher_PublishAll(t *testing.T) {
	ctx := context.Background()

	t.Run("one push per room", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		payloads := map[string][]byte{}
		capture := func(args mock.Arguments) { payloads[args.String(1)] = args.Get(2).([]byte) }
		store.On("Push", ctx, "ipd_ward_H1_W2", mock.Anything).Run(capture).Return(nil)
		store.On("Push", ctx, "ipd_nurse_H1_W2", mock.Anything).Run(capture).Return(nil)
		store.On("Trim", ctx, mock.Anything, mock.Anything).Return(nil)

		err := pub.PublishAll(ctx, bedEvent(), "ipd_ward_H1_W2", "ipd_nurse_H1_W2")

		require.NoError(t, err)
		store.AssertNumberOfCalls(t, "Push", 2)
		assert.Equal(t, payloads["ipd_ward_H1_W2"], payloads["ipd_nurse_H1_W2"])
	})

	t.Run("failure on one room does not stop the others", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		store.On("Push", ctx, "ipd_ward_H1_W2", mock.Anything).Return(errors.New("boom"))
		store.On("Push", ctx, "ipd_nurse_H1_W2", mock.Anything).Return(nil)
		store.On("Trim", ctx, "ipd_nurse_H1_W2", mock.Anything).Return(nil)

		err := pub.PublishAll(ctx, bedEvent(), "ipd_ward_H1_W2", "ipd_nurse_H1_W2")

		assert.ErrorIs(t, err, apperrors.ErrQueueUnavailable)
		assert.Contains(t, err.Error(), "ipd_ward_H1_W2")
		assert.NotContains(t, err.Error(), "ipd_nurse_H1_W2")
		store.AssertExpectations(t)
	})

	t.Run("no rooms", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		pub := services.NewEventPublisher(store, nil, nil, discardLogger)

		assert.ErrorIs(t, pub.PublishAll(ctx, bedEvent()), apperrors.ErrNoRooms)
	})
}
