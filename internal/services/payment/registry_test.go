package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/storage/memory"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePayment(ctx context.Context, link models.PaymentLink) (*models.Checkout, error) {
	args := m.Called(ctx, link)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Checkout), args.Error(1)
}

func (m *MockGateway) PaymentSucceeded(ctx context.Context, providerPaymentID string) (bool, error) {
	args := m.Called(ctx, providerPaymentID)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newUser(t *testing.T, repo *memory.Storage, externalID int64) *models.User {
	t.Helper()
	u, _, err := repo.GetOrCreateUser(context.Background(), models.User{ExternalID: externalID, TrialLeft: 3})
	require.NoError(t, err)
	return u
}

func TestRegistry_Issue(t *testing.T) {
	repo := memory.New()
	u := newUser(t, repo, 1)

	gw := new(MockGateway)
	gw.On("CreatePayment", mock.Anything, mock.MatchedBy(func(l models.PaymentLink) bool {
		return l.UserID == u.ID && l.Plan == models.PlanMedium && l.Amount.Equal(decimal.NewFromInt(1300))
	})).Return(&models.Checkout{ProviderPaymentID: "pp-1", URL: "https://pay/1"}, nil).Once()

	r := NewRegistry(repo, gw, models.DefaultPlans(), clock.NewManual(t0), newNoopLogger())
	link, err := r.Issue(context.Background(), u.ID, models.PlanMedium)
	require.NoError(t, err)

	assert.Len(t, link.Token, 10)
	assert.Regexp(t, "^[0-9a-f]{10}$", link.Token)
	assert.False(t, link.Settled)
	assert.Equal(t, t0, link.CreatedAt)
	assert.Equal(t, "https://pay/1", link.PaymentURL)

	stored, err := r.Link(context.Background(), link.Token)
	require.NoError(t, err)
	assert.Equal(t, "pp-1", stored.ProviderPaymentID)
	gw.AssertExpectations(t)
}

func TestRegistry_IssueErrors(t *testing.T) {
	tests := []struct {
		name      string
		plan      models.PlanKind
		setupMock func(*MockGateway)
		wantErr   error
	}{
		{
			name:      "неизвестный тариф",
			plan:      "year",
			setupMock: func(*MockGateway) {},
			wantErr:   models.ErrInvalidPlan,
		},
		{
			name: "ошибка шлюза",
			plan: models.PlanShort,
			setupMock: func(gw *MockGateway) {
				gw.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, errors.New("gateway down")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.New()
			u := newUser(t, repo, 1)
			gw := new(MockGateway)
			tt.setupMock(gw)

			r := NewRegistry(repo, gw, models.DefaultPlans(), clock.NewManual(t0), newNoopLogger())
			link, err := r.Issue(context.Background(), u.ID, tt.plan)
			require.Error(t, err)
			assert.Nil(t, link)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				gw.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
			}
			gw.AssertExpectations(t)
		})
	}
}

func issueLink(t *testing.T, r *Registry, gw *MockGateway, userID int64) *models.PaymentLink {
	t.Helper()
	gw.On("CreatePayment", mock.Anything, mock.Anything).Return(&models.Checkout{ProviderPaymentID: "pp", URL: "u"}, nil).Once()
	link, err := r.Issue(context.Background(), userID, models.PlanShort)
	require.NoError(t, err)
	return link
}

func TestRegistry_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("неизвестный токен", func(t *testing.T) {
		r := NewRegistry(memory.New(), new(MockGateway), models.DefaultPlans(), clock.NewManual(t0), newNoopLogger())
		link, err := r.Redeem(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, link)
	})

	t.Run("оплата не подтверждена", func(t *testing.T) {
		repo := memory.New()
		gw := new(MockGateway)
		r := NewRegistry(repo, gw, models.DefaultPlans(), clock.NewManual(t0), newNoopLogger())
		issued := issueLink(t, r, gw, newUser(t, repo, 1).ID)

		gw.On("PaymentSucceeded", mock.Anything, "pp").Return(false, nil).Once()
		link, err := r.Redeem(ctx, issued.Token)
		require.NoError(t, err)
		assert.Nil(t, link)

		stored, err := r.Link(ctx, issued.Token)
		require.NoError(t, err)
		assert.False(t, stored.Settled)
	})

	t.Run("ошибка шлюза", func(t *testing.T) {
		repo := memory.New()
		gw := new(MockGateway)
		r := NewRegistry(repo, gw, models.DefaultPlans(), clock.NewManual(t0), newNoopLogger())
		issued := issueLink(t, r, gw, newUser(t, repo, 1).ID)

		gw.On("PaymentSucceeded", mock.Anything, "pp").Return(false, errors.New("timeout")).Once()
		link, err := r.Redeem(ctx, issued.Token)
		require.Error(t, err)
		assert.Nil(t, link)
	})

	t.Run("гасится ровно один раз", func(t *testing.T) {
		repo := memory.New()
		gw := new(MockGateway)
		r := NewRegistry(repo, gw, models.DefaultPlans(), clock.NewManual(t0), newNoopLogger())
		issued := issueLink(t, r, gw, newUser(t, repo, 1).ID)

		gw.On("PaymentSucceeded", mock.Anything, "pp").Return(true, nil)

		first, err := r.Redeem(ctx, issued.Token)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.True(t, first.Settled)
		require.NotNil(t, first.SettledAt)
		assert.Equal(t, t0, *first.SettledAt)

		second, err := r.Redeem(ctx, issued.Token)
		require.NoError(t, err)
		assert.Nil(t, second)

		settled, err := r.Settle(ctx, issued.Token)
		require.NoError(t, err)
		assert.Nil(t, settled)
	})
}

func TestRegistry_ConcurrentRedeemSettlesOnce(t *testing.T) {
	repo := memory.New()
	gw := new(MockGateway)
	r := NewRegistry(repo, gw, models.DefaultPlans(), clock.NewManual(t0), newNoopLogger())
	issued := issueLink(t, r, gw, newUser(t, repo, 1).ID)
	gw.On("PaymentSucceeded", mock.Anything, "pp").Return(true, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, err := r.Redeem(context.Background(), issued.Token)
			assert.NoError(t, err)
			if link != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
