package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/clinical-event-relay/internal/adapters/primary/http/middleware"
	"github.com/lorrc/clinical-event-relay/internal/adapters/primary/validation"
	"github.com/lorrc/clinical-event-relay/internal/auth"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
)

// EventBody is the wire form of a domain event submitted by a publisher.
type EventBody struct {
	Type        string          `json:"type" validate:"required,max=64"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
	HospitalID  string          `json:"hospitalId" validate:"required,entityid"`
	WardID      string          `json:"wardId,omitempty" validate:"omitempty,entityid"`
	DoctorID    string          `json:"doctorId,omitempty" validate:"omitempty,entityid"`
	PatientID   string          `json:"patientId,omitempty" validate:"omitempty,max=128"`
	AdmissionID string          `json:"admissionId,omitempty" validate:"omitempty,max=128"`
}

// PublishEventRequest defines the JSON body for POST /events.
type PublishEventRequest struct {
	Rooms []string  `json:"rooms" validate:"required,min=1,max=64,dive,roomkey"`
	Event EventBody `json:"event" validate:"required"`
}

// RoomResult reports the outcome of one room push.
type RoomResult struct {
	Room   string `json:"room"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	roomQueued = "queued"
	roomFailed = "failed"
)

// PublishEventResponse is returned once every push has been attempted.
type PublishEventResponse struct {
	Type    string       `json:"type"`
	Queued  int          `json:"queued"`
	Failed  int          `json:"failed"`
	Results []RoomResult `json:"results"`
}

// PublishHandler lets backend services push raw domain events to rooms.
type PublishHandler struct {
	publisher    ports.EventPublisher
	errorHandler *ErrorHandler
	logger       *slog.Logger
	now          func() time.Time
}

// NewPublishHandler creates a new PublishHandler.
func NewPublishHandler(
	publisher ports.EventPublisher,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *PublishHandler {
	return &PublishHandler{
		publisher:    publisher,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "publish"),
		now:          time.Now,
	}
}

// RegisterRoutes registers the publish routes.
func (h *PublishHandler) RegisterRoutes(r chi.Router) {
	r.Post("/events", h.HandlePublish)
}

// HandlePublish handles POST /events.
func (h *PublishHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	claims, err := requireClaims(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	req, err := validation.DecodeAndValidate[PublishEventRequest](w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ctx := logging.WithHospitalID(r.Context(), req.Event.HospitalID)
	r = r.WithContext(ctx)

	if err := authorizeHospital(claims, req.Event.HospitalID); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	rooms, err := roomsForHospital(req.Rooms, req.Event.HospitalID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	event := req.Event.toDomain()
	// Every room receives the same timestamp.
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now().UTC()
	}

	resp := PublishEventResponse{
		Type:    req.Event.Type,
		Results: make([]RoomResult, 0, len(rooms)),
	}
	var errs []error
	for _, room := range rooms {
		if err := h.publisher.Publish(ctx, room, event); err != nil {
			errs = append(errs, err)
			resp.Failed++
			resp.Results = append(resp.Results, RoomResult{Room: room.String(), Status: roomFailed, Error: err.Error()})
			continue
		}
		resp.Queued++
		resp.Results = append(resp.Results, RoomResult{Room: room.String(), Status: roomQueued})
	}

	if resp.Queued == 0 {
		h.errorHandler.Handle(w, r, errors.Join(errs...))
		return
	}
	if resp.Failed > 0 {
		h.logger.WarnContext(ctx, "event queued for some rooms only",
			"event_type", req.Event.Type,
			"queued", resp.Queued,
			"failed", resp.Failed,
		)
	}

	WriteAccepted(w, resp)
}

func (b EventBody) toDomain() domain.Event {
	event := domain.Event{
		Type:        domain.EventType(b.Type),
		HospitalID:  b.HospitalID,
		WardID:      b.WardID,
		DoctorID:    b.DoctorID,
		PatientID:   b.PatientID,
		AdmissionID: b.AdmissionID,
	}
	if len(b.Data) > 0 {
		event.Data = b.Data
	}
	if b.Timestamp != nil {
		event.Timestamp = b.Timestamp.UTC()
	}
	return event
}

// roomsForHospital parses keys and rejects any room outside hospitalID.
// Duplicate keys are published once.
func roomsForHospital(keys []string, hospitalID string) ([]domain.RoomKey, error) {
	seen := make(map[domain.RoomKey]struct{}, len(keys))
	rooms := make([]domain.RoomKey, 0, len(keys))
	for _, key := range keys {
		ref, err := domain.ParseRoomKey(key)
		if err != nil {
			return nil, err
		}
		if ref.HospitalID != hospitalID {
			return nil, fmt.Errorf("%w: %q", apperrors.ErrHospitalMismatch, key)
		}
		room := ref.Key()
		if _, dup := seen[room]; dup {
			continue
		}
		seen[room] = struct{}{}
		rooms = append(rooms, room)
	}
	if len(rooms) == 0 {
		return nil, apperrors.ErrNoRooms
	}
	return rooms, nil
}

// requireClaims extracts the publisher claims placed by JWTMiddleware.
func requireClaims(r *http.Request) (*auth.Claims, error) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		return nil, apperrors.NewUnauthorizedError("Publisher token required")
	}
	return claims, nil
}

func authorizeHospital(claims *auth.Claims, hospitalID string) error {
	if !claims.CanAccessHospital(hospitalID) {
		return apperrors.NewForbiddenError("Publisher is not allowed to notify this hospital")
	}
	return nil
}
