package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRouteMethods(path string) []string {
	switch path {
	case "/v1/distributions":
		return []string{http.MethodGet, http.MethodPost}
	case "/v1/agents":
		return []string{http.MethodGet}
	default:
		return nil
	}
}

func corsHandler(origins ...string) (http.Handler, *bool) {
	reached := false
	handler := CORS(CORSConfig{AllowedOrigins: origins, Methods: uploadRouteMethods})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			w.WriteHeader(http.StatusTeapot)
		}),
	)
	return handler, &reached
}

func preflight(path, origin, method string) *http.Request {
	request := httptest.NewRequest(http.MethodOptions, path, nil)
	request.Header.Set("Origin", origin)
	request.Header.Set("Access-Control-Request-Method", method)
	request.Header.Set("Access-Control-Request-Headers", "authorization,content-type,x-filename")
	return request
}

func TestCORSPreflightUsesRouteMethods(t *testing.T) {
	handler, reached := corsHandler("https://ops.example.com")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, preflight("/v1/distributions", "https://ops.example.com", http.MethodPost))

	require.Equal(t, http.StatusNoContent, recorder.Code)
	assert.False(t, *reached)
	assert.Equal(t, "https://ops.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", recorder.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Headers"), "X-Filename")
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}

func TestCORSPreflightRejectsMethodTheRouteLacks(t *testing.T) {
	handler, reached := corsHandler("https://ops.example.com")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, preflight("/v1/agents", "https://ops.example.com", http.MethodPost))

	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.False(t, *reached)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSPreflightUnknownRoutePassesThrough(t *testing.T) {
	handler, reached := corsHandler("https://ops.example.com")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, preflight("/v2/other", "https://ops.example.com", http.MethodGet))

	assert.True(t, *reached)
	assert.Equal(t, http.StatusTeapot, recorder.Code)
}

func TestCORSActualRequestExposesHeaders(t *testing.T) {
	handler, reached := corsHandler("HTTPS://OPS.EXAMPLE.COM")

	request := httptest.NewRequest(http.MethodPost, "/v1/distributions", nil)
	request.Header.Set("Origin", "https://ops.example.com")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.True(t, *reached)
	assert.Equal(t, "https://ops.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, recorder.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	assert.Contains(t, recorder.Header().Get("Access-Control-Expose-Headers"), "Location")
}

func TestCORSWildcardOrigin(t *testing.T) {
	handler, _ := corsHandler("*")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, preflight("/v1/agents", "https://anywhere.example", http.MethodGet))

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSIgnoresDisallowedOrigin(t *testing.T) {
	handler, reached := corsHandler("https://ops.example.com")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, preflight("/v1/distributions", "https://evil.example", http.MethodPost))

	assert.True(t, *reached)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	handler, reached := corsHandler()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, preflight("/v1/distributions", "https://ops.example.com", http.MethodPost))

	assert.True(t, *reached)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}
