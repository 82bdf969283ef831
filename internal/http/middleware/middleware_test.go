package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRequiresBearerTokenOnV1(t *testing.T) {
	handler := RequestID(Auth("secret-token")(okHandler()))

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "health is public", path: "/healthz", want: http.StatusOK},
		{name: "missing header", path: "/v1/distributions", want: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/v1/distributions", header: "Basic secret-token", want: http.StatusUnauthorized},
		{name: "wrong token", path: "/v1/distributions", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", path: "/v1/distributions", header: "Bearer secret-token", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				request.Header.Set("Authorization", tc.header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)
			assert.Equal(t, tc.want, recorder.Code)

			if tc.want == http.StatusUnauthorized {
				var payload errorPayload
				require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
				assert.Equal(t, "unauthorized", payload.Error.Code)
				assert.Equal(t, recorder.Header().Get("X-Request-Id"), payload.RequestID)
			}
		})
	}
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	recorder := httptest.NewRecorder()
	Auth("")(okHandler()).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/agents", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RPS: 0.5, Burst: 2})(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		request := httptest.NewRequest(http.MethodGet, "/v1/distributions", nil)
		request.RemoteAddr = "10.0.0.1:5000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		codes = append(codes, recorder.Code)
		if recorder.Code == http.StatusTooManyRequests {
			assert.Equal(t, "2", recorder.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodGet, "/v1/distributions", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, other)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestRequestIDPropagatesValidHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set("X-Request-Id", "req-123")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", recorder.Header().Get("X-Request-Id"))

	request = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set("X-Request-Id", "bad id\twith spaces")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.NotEqual(t, "bad id\twith spaces", seen)
	assert.Len(t, seen, 36)
}

func TestTraceLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := RequestID(Trace(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/distributions", nil))

	line := buf.String()
	assert.True(t, strings.Contains(line, "status=418"), line)
	assert.Contains(t, line, "path=/v1/distributions")
	assert.Contains(t, line, "bytes=15")
}
