package ports

import (
	"context"
	"time"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
)

// EventPublisher is the narrow contract CRUD handlers use to announce a
// state change. Publishing succeeds once the queue store accepts the push,
// whether or not anyone is listening.
type EventPublisher interface {
	Publish(ctx context.Context, key domain.RoomKey, event domain.Event) error
	PublishAll(ctx context.Context, event domain.Event, keys ...domain.RoomKey) error
}

// RoomFanout is what a delivery poller needs from a namespace: the rooms
// worth polling and a way to hand a popped entry to their sockets.
type RoomFanout interface {
	Name() domain.Namespace
	ActiveRooms() []domain.RoomKey
	// Deliver queues payload on every open socket joined to key and
	// returns how many sockets accepted it.
	Deliver(key domain.RoomKey, payload []byte) int
}

// RelayMetrics records relay activity. Implementations must be safe for
// concurrent use.
type RelayMetrics interface {
	ConnectionOpened(ns domain.Namespace)
	ConnectionClosed(ns domain.Namespace)
	ActiveRooms(ns domain.Namespace, count int)
	EventPublished(ns domain.Namespace)
	PublishFailed(ns domain.Namespace)
	PopFailed(ns domain.Namespace)
	Delivered(ns domain.Namespace, sockets int)
	Dropped(ns domain.Namespace)
	SweepCompleted(ns domain.Namespace, duration time.Duration)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

var _ RelayMetrics = NopMetrics{}

func (NopMetrics) ConnectionOpened(domain.Namespace) {}
func (NopMetrics) ConnectionClosed(domain.Namespace) {}
func (NopMetrics) ActiveRooms(domain.Namespace, int) {}
func (NopMetrics) EventPublished(domain.Namespace) {}
func (NopMetrics) PublishFailed(domain.Namespace) {}
func (NopMetrics) PopFailed(domain.Namespace) {}
func (NopMetrics) Delivered(domain.Namespace, int) {}
func (NopMetrics) Dropped(domain.Namespace) {}
func (NopMetrics) SweepCompleted(domain.Namespace, time.Duration) {}

// AppointmentParams defines the input for appointment queue notifications.
type AppointmentParams struct {
	HospitalID  string
	DoctorID    string
	Appointment domain.AppointmentSnapshot
}

// QueueParams defines the input for a doctor queue refresh.
type QueueParams struct {
	HospitalID string
	DoctorID   string
	Queue      domain.QueueSnapshot
}

// BedAvailabilityParams defines the input for a ward bed count change.
type BedAvailabilityParams struct {
	HospitalID    string
	WardID        string
	AvailableBeds int
	TotalBeds     int
}

// AdmissionParams defines the input for admission and discharge notifications.
type AdmissionParams struct {
	HospitalID string
	Admission  domain.AdmissionSnapshot
}

// TransferParams defines the input for a ward-to-ward transfer.
type TransferParams struct {
	HospitalID string
	DoctorID   string
	Transfer   domain.TransferSnapshot
}

// VisitParams defines the input for a completed doctor visit.
type VisitParams struct {
	HospitalID string
	WardID     string
	Visit      domain.VisitSnapshot
}

// CriticalAlertParams defines the input for a critical patient alert.
type CriticalAlertParams struct {
	HospitalID  string
	WardID      string
	DoctorID    string
	AdmissionID string
	Alert       domain.CriticalAlertSnapshot
}

// ClinicalNotifier builds clinical domain events and publishes each to
// every audience that should see it.
type ClinicalNotifier interface {
	AppointmentBooked(ctx context.Context, params AppointmentParams) error
	QueueUpdated(ctx context.Context, params QueueParams) error
	BedAvailabilityChanged(ctx context.Context, params BedAvailabilityParams) error
	PatientAdmitted(ctx context.Context, params AdmissionParams) error
	PatientDischarged(ctx context.Context, params AdmissionParams) error
	PatientTransferred(ctx context.Context, params TransferParams) error
	VisitCompleted(ctx context.Context, params VisitParams) error
	CriticalAlert(ctx context.Context, params CriticalAlertParams) error
}
