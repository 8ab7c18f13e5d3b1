package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	mw "github.com/lorrc/clinical-event-relay/internal/adapters/primary/http/middleware"
	"github.com/lorrc/clinical-event-relay/internal/auth"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// asPublisher injects claims the way JWTMiddleware would after a valid token.
func asPublisher(claims *auth.Claims) func(stdhttp.Handler) stdhttp.Handler {
	return func(next stdhttp.Handler) stdhttp.Handler {
		return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			if claims != nil {
				r = r.WithContext(mw.WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hospitalClaims(hospitalIDs ...string) *auth.Claims {
	return &auth.Claims{Service: "ipd-service", HospitalIDs: hospitalIDs}
}

func newRouter(claims *auth.Claims, register func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(asPublisher(claims))
	register(r)
	return r
}

func postJSON(t *testing.T, router stdhttp.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(stdhttp.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&out))
	return out
}
