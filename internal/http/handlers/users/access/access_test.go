package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) UserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockService) GetActive(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockService) HasAccess(ctx context.Context, user *models.User) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestAccessHandler_ServeHTTP(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	sub := &models.Subscription{ID: 5, UserID: 1, StartDate: start, EndDate: start.Add(7 * 24 * time.Hour),
		Plan: models.PlanShort, AmountPaid: decimal.NewFromInt(650), PaymentRef: "abc"}

	tests := []struct {
		name           string
		externalID     string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:       "активная подписка",
			externalID: "42",
			setupMock: func(s *MockService) {
				s.On("UserByExternalID", mock.Anything, int64(42)).Return(&models.User{ID: 1, ExternalID: 42}, nil).Once()
				s.On("HasAccess", mock.Anything, mock.Anything).Return(true, nil).Once()
				s.On("GetActive", mock.Anything, int64(1)).Return(sub, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"status":"OK","data":{"external_id":42,"has_access":true,"trial_left":0,
				"subscription":{"id":5,"user_id":1,"start_date":"2025-03-10T12:00:00Z","end_date":"2025-03-17T12:00:00Z",
				"plan":"week","amount_paid":"650","payment_ref":"abc"}}}`,
		},
		{
			name:       "только пробные поиски",
			externalID: "43",
			setupMock: func(s *MockService) {
				s.On("UserByExternalID", mock.Anything, int64(43)).Return(&models.User{ID: 2, ExternalID: 43, TrialLeft: 2}, nil).Once()
				s.On("HasAccess", mock.Anything, mock.Anything).Return(true, nil).Once()
				s.On("GetActive", mock.Anything, int64(2)).Return(nil, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"external_id":43,"has_access":true,"trial_left":2}}`,
		},
		{
			name:       "нет доступа",
			externalID: "44",
			setupMock: func(s *MockService) {
				s.On("UserByExternalID", mock.Anything, int64(44)).Return(&models.User{ID: 3, ExternalID: 44}, nil).Once()
				s.On("HasAccess", mock.Anything, mock.Anything).Return(false, nil).Once()
				s.On("GetActive", mock.Anything, int64(3)).Return(nil, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"external_id":44,"has_access":false,"trial_left":0}}`,
		},
		{
			name:       "решение о доступе принимает сервис",
			externalID: "47",
			setupMock: func(s *MockService) {
				user := &models.User{ID: 7, ExternalID: 47, TrialLeft: 1}
				s.On("UserByExternalID", mock.Anything, int64(47)).Return(user, nil).Once()
				s.On("HasAccess", mock.Anything, user).Return(false, nil).Once()
				s.On("GetActive", mock.Anything, int64(7)).Return(nil, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"external_id":47,"has_access":false,"trial_left":1}}`,
		},
		{
			name:       "ошибка проверки доступа",
			externalID: "48",
			setupMock: func(s *MockService) {
				s.On("UserByExternalID", mock.Anything, int64(48)).Return(&models.User{ID: 8, ExternalID: 48}, nil).Once()
				s.On("HasAccess", mock.Anything, mock.Anything).Return(false, errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"internal error"}`,
		},
		{
			name:           "некорректный id",
			externalID:     "abc",
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid external_id"}`,
		},
		{
			name:       "пользователь не найден",
			externalID: "45",
			setupMock: func(s *MockService) {
				s.On("UserByExternalID", mock.Anything, int64(45)).Return(nil, models.ErrUserNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"user not found"}`,
		},
		{
			name:       "ошибка хранилища",
			externalID: "46",
			setupMock: func(s *MockService) {
				s.On("UserByExternalID", mock.Anything, int64(46)).Return(&models.User{ID: 6, ExternalID: 46}, nil).Once()
				s.On("HasAccess", mock.Anything, mock.Anything).Return(true, nil).Once()
				s.On("GetActive", mock.Anything, int64(6)).Return(nil, errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"internal error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMock(service)

			router := chi.NewRouter()
			router.Get("/api/v1/users/{external_id}/access", New(newNoopLogger(), service).ServeHTTP)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/"+tt.externalID+"/access", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			service.AssertExpectations(t)
		})
	}
}
