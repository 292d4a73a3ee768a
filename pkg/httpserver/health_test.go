package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounter struct {
	n   int
	err error
}

func (f fixedCounter) CountUnresolvedSince(context.Context, time.Time) (int, error) {
	return f.n, f.err
}

func get(t *testing.T, h *Health, path string) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthBasic(t *testing.T) {
	code, body := get(t, NewHealth("bakery", nil), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "bakery", body["service"])
}

func TestHealthDetailed(t *testing.T) {
	tests := []struct {
		name       string
		counter    ErrorCounter
		checks     []Check
		wantCode   int
		wantStatus string
	}{
		{name: "quiet", counter: fixedCounter{n: 9}, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "noisy", counter: fixedCounter{n: 10}, wantCode: http.StatusServiceUnavailable, wantStatus: "degraded"},
		{name: "counter error", counter: fixedCounter{err: errors.New("db down")}, wantCode: http.StatusOK, wantStatus: "healthy"},
		{
			name:       "database down",
			counter:    fixedCounter{},
			checks:     []Check{{Name: "database", Ping: func(context.Context) error { return errors.New("refused") }}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, NewHealth("bakery", tt.counter, tt.checks...), "/health/detailed")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, body["status"])
			checks, ok := body["checks"].(map[string]any)
			require.True(t, ok)
			assert.Contains(t, checks, "errors")
			assert.Contains(t, checks, "memory")
		})
	}
}
