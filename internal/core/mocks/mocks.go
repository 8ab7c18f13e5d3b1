package mocks

import (
	"context"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockQueueStore is a mock implementation of ports.QueueStore
type MockQueueStore struct {
	mock.Mock
}

func NewMockQueueStore() *MockQueueStore {
	return &MockQueueStore{}
}

func (m *MockQueueStore) Push(ctx context.Context, key string, payload []byte) error {
	args := m.Called(ctx, key, payload)
	return args.Error(0)
}

func (m *MockQueueStore) Pop(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockQueueStore) Trim(ctx context.Context, key string, keep int) error {
	args := m.Called(ctx, key, keep)
	return args.Error(0)
}

func (m *MockQueueStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, key domain.RoomKey, event domain.Event) error {
	args := m.Called(ctx, key, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishAll(ctx context.Context, event domain.Event, keys ...domain.RoomKey) error {
	args := m.Called(ctx, event, keys)
	return args.Error(0)
}

// MockRoomFanout is a mock implementation of ports.RoomFanout
type MockRoomFanout struct {
	mock.Mock
}

func NewMockRoomFanout() *MockRoomFanout {
	return &MockRoomFanout{}
}

func (m *MockRoomFanout) Name() domain.Namespace {
	args := m.Called()
	return args.Get(0).(domain.Namespace)
}

func (m *MockRoomFanout) ActiveRooms() []domain.RoomKey {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.RoomKey)
}

func (m *MockRoomFanout) Deliver(key domain.RoomKey, payload []byte) int {
	args := m.Called(key, payload)
	return args.Int(0)
}

// MockClinicalNotifier is a mock implementation of ports.ClinicalNotifier
type MockClinicalNotifier struct {
	mock.Mock
}

func NewMockClinicalNotifier() *MockClinicalNotifier {
	return &MockClinicalNotifier{}
}

func (m *MockClinicalNotifier) AppointmentBooked(ctx context.Context, params ports.AppointmentParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockClinicalNotifier) QueueUpdated(ctx context.Context, params ports.QueueParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockClinicalNotifier) BedAvailabilityChanged(ctx context.Context, params ports.BedAvailabilityParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockClinicalNotifier) PatientAdmitted(ctx context.Context, params ports.AdmissionParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockClinicalNotifier) PatientDischarged(ctx context.Context, params ports.AdmissionParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockClinicalNotifier) PatientTransferred(ctx context.Context, params ports.TransferParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockClinicalNotifier) VisitCompleted(ctx context.Context, params ports.VisitParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockClinicalNotifier) CriticalAlert(ctx context.Context, params ports.CriticalAlertParams) error {
	return m.Called(ctx, params).Error(0)
}
