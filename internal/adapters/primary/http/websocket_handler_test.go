package http

import (
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsAdapter "github.com/lorrc/clinical-event-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/clinical-event-relay/internal/config"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
)

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"dashboard.example.com", "*.hospital.org"}

	tests := []struct {
		host string
		want bool
	}{
		{"dashboard.example.com", true},
		{"ward.hospital.org", true},
		{"hospital.org", true},
		{"evil.com", false},
		{"dashboard.example.com.evil.com", false},
		{"nothospital.org", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, originAllowed(tt.host, allowed))
		})
	}

	assert.True(t, originAllowed("anything.test", []string{"*"}))
}

type wsServer struct {
	relay *wsAdapter.Relay
	base  string
}

func newWSServer(t *testing.T, env string, origins []string) *wsServer {
	t.Helper()

	cfg := &config.Config{
		App:       config.AppConfig{Environment: env},
		WebSocket: config.WebSocketConfig{AllowedOrigins: origins, ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	relay := wsAdapter.NewRelay(wsAdapter.DefaultOptions(), ports.NopMetrics{}, discardLogger)

	r := chi.NewRouter()
	NewWebSocketHandler(relay, cfg, discardLogger).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		relay.Shutdown()
		srv.Close()
	})

	return &wsServer{relay: relay, base: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func TestWebSocketHandler_UpgradesEachNamespace(t *testing.T) {
	s := newWSServer(t, "production", []string{"dashboard.example.com"})

	for _, name := range domain.AllNamespaces() {
		conn, _, err := websocket.DefaultDialer.Dial(s.base+name.Path(), nil)
		require.NoError(t, err, name)
		t.Cleanup(func() { _ = conn.Close() })

		ns := s.relay.Namespace(name)
		require.Eventually(t, func() bool { return ns.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	}
}

func TestWebSocketHandler_RejectsForeignOrigin(t *testing.T) {
	s := newWSServer(t, "production", []string{"dashboard.example.com"})

	header := stdhttp.Header{}
	header.Set("Origin", "https://evil.com")
	_, resp, err := websocket.DefaultDialer.Dial(s.base+"/ws/queue", header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://dashboard.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(s.base+"/ws/queue", header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestWebSocketHandler_DevelopmentAllowsAnyOrigin(t *testing.T) {
	s := newWSServer(t, "development", nil)

	header := stdhttp.Header{}
	header.Set("Origin", "http://localhost:5173")
	conn, _, err := websocket.DefaultDialer.Dial(s.base+"/ws/ipd/ward", header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestWebSocketHandler_ClosesAfterShutdown(t *testing.T) {
	s := newWSServer(t, "production", nil)
	s.relay.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial(s.base+"/ws/ipd/nurse", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
