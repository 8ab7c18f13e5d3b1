package http

import (
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	wsAdapter "github.com/lorrc/clinical-event-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/clinical-event-relay/internal/adapters/secondary/memory"
	"github.com/lorrc/clinical-event-relay/internal/core/mocks"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
)

func getRequest(router stdhttp.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(stdhttp.MethodGet, path, nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func newHealthRouter(store HealthChecker, relay *wsAdapter.Relay) chi.Router {
	r := chi.NewRouter()
	NewHealthHandler(store, relay, "test").RegisterRoutes(r)
	return r
}

func TestHealth_Liveness(t *testing.T) {
	router := newHealthRouter(nil, nil)

	recorder := getRequest(router, "/health/live")

	require.Equal(t, stdhttp.StatusOK, recorder.Code)
	assert.Equal(t, "healthy", decodeBody[HealthResponse](t, recorder).Status)
}

func TestHealth_ReadinessReflectsQueueStore(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		router := newHealthRouter(memory.NewQueueStore(), nil)

		recorder := getRequest(router, "/health/ready")

		require.Equal(t, stdhttp.StatusOK, recorder.Code)
		resp := decodeBody[HealthResponse](t, recorder)
		assert.Equal(t, "healthy", resp.Checks["queue_store"].Status)
		assert.Equal(t, "test", resp.Version)
	})

	t.Run("store down", func(t *testing.T) {
		store := mocks.NewMockQueueStore()
		store.On("Ping", mock.Anything).Return(errors.New("dial tcp: connection refused"))
		router := newHealthRouter(store, nil)

		recorder := getRequest(router, "/health/ready")

		require.Equal(t, stdhttp.StatusServiceUnavailable, recorder.Code)
		resp := decodeBody[HealthResponse](t, recorder)
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Contains(t, resp.Checks["queue_store"].Message, "connection refused")
	})

	t.Run("store not configured", func(t *testing.T) {
		router := newHealthRouter(nil, nil)

		recorder := getRequest(router, "/health/ready")

		assert.Equal(t, stdhttp.StatusServiceUnavailable, recorder.Code)
	})
}

func TestHealth_DetailedIncludesNamespaces(t *testing.T) {
	relay := wsAdapter.NewRelay(wsAdapter.DefaultOptions(), ports.NopMetrics{}, discardLogger)
	router := newHealthRouter(memory.NewQueueStore(), relay)

	recorder := getRequest(router, "/health")

	require.Equal(t, stdhttp.StatusOK, recorder.Code)
	resp := decodeBody[struct {
		Status     string                     `json:"status"`
		Goroutines int                        `json:"goroutines"`
		Namespaces []wsAdapter.NamespaceStats `json:"namespaces"`
	}](t, recorder)
	assert.Equal(t, "healthy", resp.Status)
	assert.Positive(t, resp.Goroutines)
	require.Len(t, resp.Namespaces, 4)
	assert.Equal(t, "/ws/queue", resp.Namespaces[0].Path)
}
