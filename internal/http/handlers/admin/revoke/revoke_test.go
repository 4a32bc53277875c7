package revoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/notification"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) RevokeByUsername(ctx context.Context, username string) (*models.User, bool, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.User), args.Bool(1), args.Error(2)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyText(ctx context.Context, recipient int64, text string) error {
	return m.Called(ctx, recipient, text).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestRevokeHandler_ServeHTTP(t *testing.T) {
	user := &models.User{ID: 1, ExternalID: 42, Username: "trinity"}

	tests := []struct {
		name           string
		setupMocks     func(*MockService, *MockNotifier)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "подписка отозвана",
			setupMocks: func(s *MockService, n *MockNotifier) {
				s.On("RevokeByUsername", mock.Anything, "trinity").Return(user, true, nil).Once()
				n.On("NotifyText", mock.Anything, int64(42), notification.RevokeText()).Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"status":"OK","data":{"revoked":true,"user":{"id":1,"external_id":42,"username":"trinity",
				"first_name":"","last_name":"","registered_at":"0001-01-01T00:00:00Z","trial_left":0}}}`,
		},
		{
			name: "нет активной подписки",
			setupMocks: func(s *MockService, _ *MockNotifier) {
				s.On("RevokeByUsername", mock.Anything, "trinity").Return(user, false, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"status":"OK","data":{"revoked":false,"user":{"id":1,"external_id":42,"username":"trinity",
				"first_name":"","last_name":"","registered_at":"0001-01-01T00:00:00Z","trial_left":0}}}`,
		},
		{
			name: "пользователь не найден",
			setupMocks: func(s *MockService, _ *MockNotifier) {
				s.On("RevokeByUsername", mock.Anything, "trinity").
					Return(nil, false, fmt.Errorf("ledger.RevokeByUsername: %w", models.ErrUserNotFound)).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"user not found"}`,
		},
		{
			name: "ошибка хранилища",
			setupMocks: func(s *MockService, _ *MockNotifier) {
				s.On("RevokeByUsername", mock.Anything, "trinity").Return(nil, false, errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"internal error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			notifier := new(MockNotifier)
			tt.setupMocks(service, notifier)

			router := chi.NewRouter()
			router.Delete("/api/v1/admin/subscriptions/{username}", New(newNoopLogger(), service, notifier).ServeHTTP)

			req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/subscriptions/trinity", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			service.AssertExpectations(t)
			notifier.AssertExpectations(t)
		})
	}
}
