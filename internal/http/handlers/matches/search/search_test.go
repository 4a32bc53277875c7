package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
	searchsvc "github.com/magabrotheeeer/odds-notifier/internal/services/search"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Search(ctx context.Context, externalID int64) (*searchsvc.Result, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*searchsvc.Result), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestSearchHandler_ServeHTTP(t *testing.T) {
	kickoff := time.Date(2025, 3, 12, 19, 0, 0, 0, time.UTC)
	match := models.Match{ID: "m1", HomeTeam: "Arsenal", AwayTeam: "Chelsea", Competition: "EPL",
		Kickoff: kickoff, Odds: models.Odds{Home: 2.1, Away: 3.4}}

	tests := []struct {
		name           string
		externalID     string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:       "найдены матчи",
			externalID: "42",
			setupMock: func(s *MockService) {
				s.On("Search", mock.Anything, int64(42)).
					Return(&searchsvc.Result{Matches: []models.Match{match}, TrialLeft: 1}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"status":"OK","data":{"subscribed":false,"trial_left":1,"matches":[{"id":"m1",
				"home_team":"Arsenal","away_team":"Chelsea","competition":"EPL","kickoff":"2025-03-12T19:00:00Z",
				"odds":{"home":2.1,"away":3.4,"has_draw":false},"notified":false}]}}`,
		},
		{
			name:       "пустой результат",
			externalID: "42",
			setupMock: func(s *MockService) {
				s.On("Search", mock.Anything, int64(42)).Return(&searchsvc.Result{Subscribed: true}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"subscribed":true,"trial_left":0,"matches":[]}}`,
		},
		{
			name:       "доступ запрещён",
			externalID: "42",
			setupMock: func(s *MockService) {
				s.On("Search", mock.Anything, int64(42)).
					Return(nil, fmt.Errorf("search.Search: %w", searchsvc.ErrAccessDenied)).Once()
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"status":"Error","error":"no active subscription and no trial searches left"}`,
		},
		{
			name:       "пользователь не найден",
			externalID: "7",
			setupMock: func(s *MockService) {
				s.On("Search", mock.Anything, int64(7)).
					Return(nil, fmt.Errorf("search.Search: %w", models.ErrUserNotFound)).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"user not found"}`,
		},
		{
			name:       "внутренняя ошибка",
			externalID: "8",
			setupMock: func(s *MockService) {
				s.On("Search", mock.Anything, int64(8)).Return(nil, errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"internal error"}`,
		},
		{
			name:           "некорректный id",
			externalID:     "x",
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid external_id"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMock(service)

			router := chi.NewRouter()
			router.Post("/api/v1/users/{external_id}/search", New(newNoopLogger(), service).ServeHTTP)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/users/"+tt.externalID+"/search", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			service.AssertExpectations(t)
		})
	}
}
