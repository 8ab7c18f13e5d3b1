package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	wsAdapter "github.com/lorrc/clinical-event-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/clinical-event-relay/internal/config"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
)

// WebSocketHandler upgrades dashboard connections into relay namespaces.
// Subscribers are not authenticated; a join only selects which room
// deliveries the socket receives.
type WebSocketHandler struct {
	relay    *wsAdapter.Relay
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	relay *wsAdapter.Relay,
	cfg *config.Config,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		relay:  relay,
		logger: logger.With("component", "websocket_handler"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg.WebSocket.AllowedOrigins, cfg.IsDevelopment()),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(allowedOrigins []string, development bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if development {
			if origin != "" {
				h.logger.DebugContext(r.Context(), "allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.WarnContext(r.Context(), "failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		if originAllowed(parsedOrigin.Host, allowedOrigins) {
			return true
		}

		h.logger.WarnContext(r.Context(), "websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// originAllowed matches host against exact entries and "*.example.com"
// wildcard entries. A bare "*" allows every origin.
func originAllowed(host string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		switch {
		case allowed == "*":
			return true
		case strings.HasPrefix(allowed, "*."):
			suffix := allowed[1:]
			if strings.HasSuffix(host, suffix) || host == allowed[2:] {
				return true
			}
		case host == allowed:
			return true
		}
	}
	return false
}

// Namespace returns the upgrade handler of one namespace.
func (h *WebSocketHandler) Namespace(name domain.Namespace) http.Handler {
	ns := h.relay.Namespace(name)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ns == nil {
			http.Error(w, "Unknown namespace", http.StatusNotFound)
			return
		}

		ctx := logging.WithNamespace(r.Context(), string(name))

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			h.logger.WarnContext(ctx, "failed to upgrade websocket connection", "error", err)
			return
		}

		client, err := ns.Accept(conn)
		if err != nil {
			h.logger.InfoContext(ctx, "websocket connection refused", "error", err)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
			_ = conn.Close()
			return
		}

		h.logger.InfoContext(logging.WithConnectionID(ctx, client.ID), "websocket connection established",
			"remote_addr", r.RemoteAddr,
		)
	})
}

// RegisterRoutes mounts every namespace at its fixed path.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	for _, ns := range domain.AllNamespaces() {
		r.Handle(ns.Path(), h.Namespace(ns))
	}
}
