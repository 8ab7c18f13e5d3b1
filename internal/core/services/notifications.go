package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
)

// ClinicalNotifier turns clinical state changes into domain events and
// publishes them to every room that should see them.
type ClinicalNotifier struct {
	publisher ports.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// Ensure ClinicalNotifier implements the ports.ClinicalNotifier interface.
var _ ports.ClinicalNotifier = (*ClinicalNotifier)(nil)

// NewClinicalNotifier creates a notifier on top of an event publisher.
func NewClinicalNotifier(publisher ports.EventPublisher, logger *slog.Logger) *ClinicalNotifier {
	return &ClinicalNotifier{
		publisher: publisher,
		logger:    logger.With("component", "clinical_notifier"),
		now:       time.Now,
	}
}

// AppointmentBooked announces a new slot in a doctor's general queue.
func (n *ClinicalNotifier) AppointmentBooked(ctx context.Context, params ports.AppointmentParams) error {
	room, err := domain.QueueRoom(params.HospitalID, params.DoctorID)
	if err != nil {
		return err
	}

	return n.publish(ctx, domain.Event{
		Type:       domain.EventAppointmentBooked,
		Data:       params.Appointment,
		HospitalID: params.HospitalID,
		DoctorID:   params.DoctorID,
		PatientID:  params.Appointment.PatientID,
	}, room)
}

// QueueUpdated refreshes the waiting queue of a doctor.
func (n *ClinicalNotifier) QueueUpdated(ctx context.Context, params ports.QueueParams) error {
	room, err := domain.QueueRoom(params.HospitalID, params.DoctorID)
	if err != nil {
		return err
	}

	return n.publish(ctx, domain.Event{
		Type:       domain.EventQueueUpdated,
		Data:       params.Queue,
		HospitalID: params.HospitalID,
		DoctorID:   params.DoctorID,
	}, room)
}

// BedAvailabilityChanged notifies the ward monitor and the nurse station.
func (n *ClinicalNotifier) BedAvailabilityChanged(ctx context.Context, params ports.BedAvailabilityParams) error {
	rooms, err := wardAudience(params.HospitalID, params.WardID)
	if err != nil {
		return err
	}

	return n.publish(ctx, domain.Event{
		Type: domain.EventBedAvailabilityChanged,
		Data: domain.BedAvailability{
			AvailableBeds: params.AvailableBeds,
			TotalBeds:     params.TotalBeds,
		},
		HospitalID: params.HospitalID,
		WardID:     params.WardID,
	}, rooms...)
}

// PatientAdmitted notifies the ward, its nurse station and the attending doctor.
func (n *ClinicalNotifier) PatientAdmitted(ctx context.Context, params ports.AdmissionParams) error {
	return n.admissionEvent(ctx, domain.EventPatientAdmitted, params)
}

// PatientDischarged notifies the same audiences as an admission.
func (n *ClinicalNotifier) PatientDischarged(ctx context.Context, params ports.AdmissionParams) error {
	return n.admissionEvent(ctx, domain.EventPatientDischarged, params)
}

func (n *ClinicalNotifier) admissionEvent(ctx context.Context, eventType domain.EventType, params ports.AdmissionParams) error {
	a := params.Admission

	rooms, err := wardAudience(params.HospitalID, a.WardID)
	if err != nil {
		return err
	}
	if a.DoctorID != "" {
		doctorRoom, err := domain.DoctorRoom(params.HospitalID, a.DoctorID)
		if err != nil {
			return err
		}
		rooms = append(rooms, doctorRoom)
	}

	return n.publish(ctx, domain.Event{
		Type:        eventType,
		Data:        a,
		HospitalID:  params.HospitalID,
		WardID:      a.WardID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		AdmissionID: a.AdmissionID,
	}, rooms...)
}

// PatientTransferred notifies both wards involved, and the doctor if known.
func (n *ClinicalNotifier) PatientTransferred(ctx context.Context, params ports.TransferParams) error {
	t := params.Transfer

	rooms, err := wardAudience(params.HospitalID, t.FromWardID)
	if err != nil {
		return err
	}
	if t.ToWardID != t.FromWardID {
		dest, err := wardAudience(params.HospitalID, t.ToWardID)
		if err != nil {
			return err
		}
		rooms = append(rooms, dest...)
	}
	if params.DoctorID != "" {
		doctorRoom, err := domain.DoctorRoom(params.HospitalID, params.DoctorID)
		if err != nil {
			return err
		}
		rooms = append(rooms, doctorRoom)
	}

	return n.publish(ctx, domain.Event{
		Type:        domain.EventPatientTransferred,
		Data:        t,
		HospitalID:  params.HospitalID,
		WardID:      t.ToWardID,
		DoctorID:    params.DoctorID,
		PatientID:   t.PatientID,
		AdmissionID: t.AdmissionID,
	}, rooms...)
}

// VisitCompleted notifies the doctor dashboard and the ward's nurse station.
func (n *ClinicalNotifier) VisitCompleted(ctx context.Context, params ports.VisitParams) error {
	v := params.Visit

	doctorRoom, err := domain.DoctorRoom(params.HospitalID, v.DoctorID)
	if err != nil {
		return err
	}
	nurseRoom, err := domain.NurseRoom(params.HospitalID, params.WardID)
	if err != nil {
		return err
	}

	if v.CompletedAt.IsZero() {
		v.CompletedAt = n.now().UTC()
	}

	return n.publish(ctx, domain.Event{
		Type:        domain.EventVisitCompleted,
		Data:        v,
		HospitalID:  params.HospitalID,
		WardID:      params.WardID,
		DoctorID:    v.DoctorID,
		PatientID:   v.PatientID,
		AdmissionID: v.AdmissionID,
	}, doctorRoom, nurseRoom)
}

// CriticalAlert reaches every IPD audience of the patient.
func (n *ClinicalNotifier) CriticalAlert(ctx context.Context, params ports.CriticalAlertParams) error {
	rooms, err := wardAudience(params.HospitalID, params.WardID)
	if err != nil {
		return err
	}
	if params.DoctorID != "" {
		doctorRoom, err := domain.DoctorRoom(params.HospitalID, params.DoctorID)
		if err != nil {
			return err
		}
		rooms = append(rooms, doctorRoom)
	}

	alert := params.Alert
	if alert.Severity == "" {
		alert.Severity = domain.SeverityCritical
	}

	return n.publish(ctx, domain.Event{
		Type:        domain.EventCriticalAlert,
		Data:        alert,
		HospitalID:  params.HospitalID,
		WardID:      params.WardID,
		DoctorID:    params.DoctorID,
		PatientID:   alert.PatientID,
		AdmissionID: params.AdmissionID,
	}, rooms...)
}

// publish stamps the event once so every audience receives the same timestamp.
func (n *ClinicalNotifier) publish(ctx context.Context, event domain.Event, rooms ...domain.RoomKey) error {
	event.Timestamp = n.now().UTC()

	if err := n.publisher.PublishAll(ctx, event, rooms...); err != nil {
		n.logger.WarnContext(ctx, "clinical notification partially delivered to queue",
			"event_type", event.Type,
			"hospital_id", event.HospitalID,
			"rooms", len(rooms),
			"error", err,
		)
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// wardAudience returns the ward monitoring and nurse station rooms of a ward.
func wardAudience(hospitalID, wardID string) ([]domain.RoomKey, error) {
	wardRoom, err := domain.WardRoom(hospitalID, wardID)
	if err != nil {
		return nil, err
	}
	nurseRoom, err := domain.NurseRoom(hospitalID, wardID)
	if err != nil {
		return nil, err
	}
	return []domain.RoomKey{wardRoom, nurseRoom}, nil
}
