package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestHealthHandler_ServeHTTP(t *testing.T) {
	ok := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name           string
		checks         map[string]Check
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "без зависимостей",
			checks:         nil,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"status":"ok"}}`,
		},
		{
			name:           "все зависимости доступны",
			checks:         map[string]Check{"storage": ok, "redis": ok},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"status":"ok","storage":"ok","redis":"ok"}}`,
		},
		{
			name:           "хранилище недоступно",
			checks:         map[string]Check{"storage": failing, "redis": ok},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"status":"OK","data":{"status":"degraded","storage":"unavailable","redis":"ok"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := New(newNoopLogger(), tt.checks)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}
