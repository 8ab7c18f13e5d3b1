package domain

import (
	"time"

	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
)

// EventType defines the type of real-time clinical event.
type EventType string

const (
	EventAppointmentBooked      EventType = "APPOINTMENT_BOOKED"
	EventQueueUpdated           EventType = "QUEUE_UPDATED"
	EventBedAvailabilityChanged EventType = "BED_AVAILABILITY_CHANGED"
	EventPatientAdmitted        EventType = "PATIENT_ADMITTED"
	EventPatientDischarged      EventType = "PATIENT_DISCHARGED"
	EventPatientTransferred     EventType = "PATIENT_TRANSFERRED"
	EventVisitCompleted         EventType = "VISIT_COMPLETED"
	EventCriticalAlert          EventType = "CRITICAL_ALERT"
)

// Event is the payload pushed to a room queue and forwarded over WebSocket.
// Once pushed it is opaque: the relay delivers the serialized bytes as-is.
type Event struct {
	Type        EventType `json:"type"`
	Data        any       `json:"data"`
	Timestamp   time.Time `json:"timestamp"`
	HospitalID  string    `json:"hospitalId"`
	WardID      string    `json:"wardId,omitempty"`
	DoctorID    string    `json:"doctorId,omitempty"`
	PatientID   string    `json:"patientId,omitempty"`
	AdmissionID string    `json:"admissionId,omitempty"`
}

// Validate checks the fields every event must carry.
func (e Event) Validate() error {
	if e.Type == "" {
		return apperrors.ErrEventTypeRequired
	}
	if e.HospitalID == "" {
		return apperrors.ErrHospitalIDRequired
	}
	return nil
}
