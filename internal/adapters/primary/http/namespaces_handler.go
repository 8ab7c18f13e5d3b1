package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	wsAdapter "github.com/lorrc/clinical-event-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
)

// NamespacesHandler reports live connection and room counts.
type NamespacesHandler struct {
	relay        *wsAdapter.Relay
	errorHandler *ErrorHandler
}

func NewNamespacesHandler(relay *wsAdapter.Relay, errorHandler *ErrorHandler) *NamespacesHandler {
	return &NamespacesHandler{relay: relay, errorHandler: errorHandler}
}

// RegisterRoutes registers the /namespaces routes.
func (h *NamespacesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Get("/{namespace}", h.HandleGet)
}

// HandleList handles GET /namespaces.
func (h *NamespacesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteList(w, h.relay.Stats())
}

// HandleGet handles GET /namespaces/{namespace}.
func (h *NamespacesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name := domain.Namespace(chi.URLParam(r, "namespace"))
	ns := h.relay.Namespace(name)
	if ns == nil {
		h.errorHandler.Handle(w, r, apperrors.ErrUnknownNamespace)
		return
	}
	WriteSuccess(w, ns.Stats())
}
