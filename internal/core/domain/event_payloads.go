package domain

import "time"

// AppointmentSnapshot is the data of appointment queue events.
type AppointmentSnapshot struct {
	AppointmentID string     `json:"appointmentId"`
	PatientID     string     `json:"patientId,omitempty"`
	PatientName   string     `json:"patientName,omitempty"`
	TokenNumber   int        `json:"tokenNumber,omitempty"`
	SlotTime      *time.Time `json:"slotTime,omitempty"`
	Status        string     `json:"status"`
}

// QueueSnapshot summarizes a doctor's waiting queue.
type QueueSnapshot struct {
	CurrentToken int `json:"currentToken"`
	Waiting      int `json:"waiting"`
	Completed    int `json:"completed"`
}

// BedAvailability is the data of BED_AVAILABILITY_CHANGED.
type BedAvailability struct {
	AvailableBeds int `json:"availableBeds"`
	TotalBeds     int `json:"totalBeds"`
}

// AdmissionSnapshot is the data of admission and discharge events.
type AdmissionSnapshot struct {
	AdmissionID string     `json:"admissionId"`
	PatientID   string     `json:"patientId"`
	PatientName string     `json:"patientName,omitempty"`
	WardID      string     `json:"wardId"`
	BedNumber   string     `json:"bedNumber,omitempty"`
	DoctorID    string     `json:"doctorId,omitempty"`
	AdmittedAt  *time.Time `json:"admittedAt,omitempty"`
	DischargeAt *time.Time `json:"dischargedAt,omitempty"`
}

// TransferSnapshot is the data of PATIENT_TRANSFERRED.
type TransferSnapshot struct {
	AdmissionID string `json:"admissionId"`
	PatientID   string `json:"patientId"`
	FromWardID  string `json:"fromWardId"`
	ToWardID    string `json:"toWardId"`
	FromBed     string `json:"fromBed,omitempty"`
	ToBed       string `json:"toBed,omitempty"`
}

// VisitSnapshot is the data of VISIT_COMPLETED.
type VisitSnapshot struct {
	VisitID     string    `json:"visitId"`
	AdmissionID string    `json:"admissionId"`
	PatientID   string    `json:"patientId"`
	DoctorID    string    `json:"doctorId"`
	Notes       string    `json:"notes,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// AlertSeverity grades a critical alert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// CriticalAlertSnapshot is the data of CRITICAL_ALERT.
type CriticalAlertSnapshot struct {
	AlertID   string             `json:"alertId"`
	PatientID string             `json:"patientId"`
	Severity  AlertSeverity      `json:"severity"`
	Message   string             `json:"message"`
	BedNumber string             `json:"bedNumber,omitempty"`
	Vitals    map[string]float64 `json:"vitals,omitempty"`
}
