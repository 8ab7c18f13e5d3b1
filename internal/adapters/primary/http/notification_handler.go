package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/clinical-event-relay/internal/adapters/primary/validation"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
)

// AppointmentBookedRequest defines the JSON body for POST /notifications/appointment-booked.
type AppointmentBookedRequest struct {
	HospitalID  string                     `json:"hospitalId" validate:"required,entityid"`
	DoctorID    string                     `json:"doctorId" validate:"required,entityid"`
	Appointment domain.AppointmentSnapshot `json:"appointment" validate:"required"`
}

// QueueUpdatedRequest defines the JSON body for POST /notifications/queue-updated.
type QueueUpdatedRequest struct {
	HospitalID string               `json:"hospitalId" validate:"required,entityid"`
	DoctorID   string               `json:"doctorId" validate:"required,entityid"`
	Queue      domain.QueueSnapshot `json:"queue"`
}

// BedAvailabilityRequest defines the JSON body for POST /notifications/bed-availability.
type BedAvailabilityRequest struct {
	HospitalID    string `json:"hospitalId" validate:"required,entityid"`
	WardID        string `json:"wardId" validate:"required,entityid"`
	AvailableBeds int    `json:"availableBeds" validate:"gte=0"`
	TotalBeds     int    `json:"totalBeds" validate:"gte=0,gtefield=AvailableBeds"`
}

// AdmissionRequest defines the JSON body for admission and discharge notifications.
type AdmissionRequest struct {
	HospitalID string                   `json:"hospitalId" validate:"required,entityid"`
	Admission  domain.AdmissionSnapshot `json:"admission" validate:"required"`
}

// TransferRequest defines the JSON body for POST /notifications/patient-transferred.
type TransferRequest struct {
	HospitalID string                  `json:"hospitalId" validate:"required,entityid"`
	DoctorID   string                  `json:"doctorId,omitempty" validate:"omitempty,entityid"`
	Transfer   domain.TransferSnapshot `json:"transfer" validate:"required"`
}

// VisitCompletedRequest defines the JSON body for POST /notifications/visit-completed.
type VisitCompletedRequest struct {
	HospitalID string               `json:"hospitalId" validate:"required,entityid"`
	WardID     string               `json:"wardId" validate:"required,entityid"`
	Visit      domain.VisitSnapshot `json:"visit" validate:"required"`
}

// CriticalAlertRequest defines the JSON body for POST /notifications/critical-alert.
type CriticalAlertRequest struct {
	HospitalID  string                       `json:"hospitalId" validate:"required,entityid"`
	WardID      string                       `json:"wardId" validate:"required,entityid"`
	DoctorID    string                       `json:"doctorId,omitempty" validate:"omitempty,entityid"`
	AdmissionID string                       `json:"admissionId,omitempty"`
	Alert       domain.CriticalAlertSnapshot `json:"alert" validate:"required"`
}

// NotificationAccepted is returned once the notification reached the queue store.
type NotificationAccepted struct {
	Type domain.EventType `json:"type"`
}

// NotificationHandler exposes the clinical notifier to backend services
// that cannot link against it directly.
type NotificationHandler struct {
	notifier     ports.ClinicalNotifier
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(
	notifier ports.ClinicalNotifier,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		notifier:     notifier,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "notifications"),
	}
}

// RegisterRoutes registers the /notifications routes.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/appointment-booked", h.HandleAppointmentBooked)
	r.Post("/queue-updated", h.HandleQueueUpdated)
	r.Post("/bed-availability", h.HandleBedAvailability)
	r.Post("/patient-admitted", h.HandlePatientAdmitted)
	r.Post("/patient-discharged", h.HandlePatientDischarged)
	r.Post("/patient-transferred", h.HandlePatientTransferred)
	r.Post("/visit-completed", h.HandleVisitCompleted)
	r.Post("/critical-alert", h.HandleCriticalAlert)
}

func (h *NotificationHandler) HandleAppointmentBooked(w http.ResponseWriter, r *http.Request) {
	notify(h, w, r, domain.EventAppointmentBooked,
		func(req *AppointmentBookedRequest) string { return req.HospitalID },
		func(ctx context.Context, req *AppointmentBookedRequest) error {
			return h.notifier.AppointmentBooked(ctx, ports.AppointmentParams{
				HospitalID:  req.HospitalID,
				DoctorID:    req.DoctorID,
				Appointment: req.Appointment,
			})
		})
}

func (h *NotificationHandler) HandleQueueUpdated(w http.ResponseWriter, r *http.Request) {
	notify(h, w, r, domain.EventQueueUpdated,
		func(req *QueueUpdatedRequest) string { return req.HospitalID },
		func(ctx context.Context, req *QueueUpdatedRequest) error {
			return h.notifier.QueueUpdated(ctx, ports.QueueParams{
				HospitalID: req.HospitalID,
				DoctorID:   req.DoctorID,
				Queue:      req.Queue,
			})
		})
}

func (h *NotificationHandler) HandleBedAvailability(w http.ResponseWriter, r *http.Request) {
	notify(h, w, r, domain.EventBedAvailabilityChanged,
		func(req *BedAvailabilityRequest) string { return req.HospitalID },
		func(ctx context.Context, req *BedAvailabilityRequest) error {
			return h.notifier.BedAvailabilityChanged(ctx, ports.BedAvailabilityParams{
				HospitalID:    req.HospitalID,
				WardID:        req.WardID,
				AvailableBeds: req.AvailableBeds,
				TotalBeds:     req.TotalBeds,
			})
		})
}

func (h *NotificationHandler) HandlePatientAdmitted(w http.ResponseWriter, r *http.Request) {
	notify(h, w, r, domain.EventPatientAdmitted,
		func(req *AdmissionRequest) string { return req.HospitalID },
		func(ctx context.Context, req *AdmissionRequest) error {
			return h.notifier.PatientAdmitted(ctx, ports.AdmissionParams{
				HospitalID: req.HospitalID,
				Admission:  req.Admission,
			})
		})
}

func (h *NotificationHandler) HandlePatientDischarged(w http.ResponseWriter, r *http.Request) {
	notify(h, w, r, domain.EventPatientDischarged,
		func(req *AdmissionRequest) string { return req.HospitalID },
		func(ctx context.Context, req *AdmissionRequest) error {
			return h.notifier.PatientDischarged(ctx, ports.AdmissionParams{
				HospitalID: req.HospitalID,
				Admission:  req.Admission,
			})
		})
}

func (h *NotificationHandler) HandlePatientTransferred(w http.ResponseWriter, r *http.Request) {
	notify(h, w, r, domain.EventPatientTransferred,
		func(req *TransferRequest) string { return req.HospitalID },
		func(ctx context.Context, req *TransferRequest) error {
			return h.notifier.PatientTransferred(ctx, ports.TransferParams{
				HospitalID: req.HospitalID,
				DoctorID:   req.DoctorID,
				Transfer:   req.Transfer,
			})
		})
}

func (h *NotificationHandler) HandleVisitCompleted(w http.ResponseWriter, r *http.Request) {
	notify(h, w, r, domain.EventVisitCompleted,
		func(req *VisitCompletedRequest) string { return req.HospitalID },
		func(ctx context.Context, req *VisitCompletedRequest) error {
			return h.notifier.VisitCompleted(ctx, ports.VisitParams{
				HospitalID: req.HospitalID,
				WardID:     req.WardID,
				Visit:      req.Visit,
			})
		})
}

func (h *NotificationHandler) HandleCriticalAlert(w http.ResponseWriter, r *http.Request) {
	notify(h, w, r, domain.EventCriticalAlert,
		func(req *CriticalAlertRequest) string { return req.HospitalID },
		func(ctx context.Context, req *CriticalAlertRequest) error {
			return h.notifier.CriticalAlert(ctx, ports.CriticalAlertParams{
				HospitalID:  req.HospitalID,
				WardID:      req.WardID,
				DoctorID:    req.DoctorID,
				AdmissionID: req.AdmissionID,
				Alert:       req.Alert,
			})
		})
}

// notify decodes T, checks the publisher may notify its hospital and hands
// it to send. A successful call answers 202.
func notify[T any](
	h *NotificationHandler,
	w http.ResponseWriter,
	r *http.Request,
	eventType domain.EventType,
	hospitalOf func(*T) string,
	send func(context.Context, *T) error,
) {
	claims, err := requireClaims(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	req, err := validation.DecodeAndValidate[T](w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	hospitalID := hospitalOf(req)
	r = r.WithContext(logging.WithHospitalID(r.Context(), hospitalID))

	if err := authorizeHospital(claims, hospitalID); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if err := send(r.Context(), req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "clinical notification queued", "event_type", eventType)
	WriteAccepted(w, NotificationAccepted{Type: eventType})
}
