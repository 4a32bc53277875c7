package stats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/metrics"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/services/ledger"
	"github.com/magabrotheeeer/odds-notifier/internal/storage/memory"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestWeekBounds(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
	}{
		{name: "понедельник", now: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), wantStart: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{name: "среда", now: time.Date(2025, 3, 12, 15, 4, 5, 0, time.UTC), wantStart: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{name: "воскресенье", now: time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC), wantStart: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{name: "через границу месяца", now: time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC), wantStart: time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC)},
		{name: "не UTC", now: time.Date(2025, 3, 10, 1, 0, 0, 0, time.FixedZone("MSK", 3*3600)), wantStart: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := WeekBounds(tt.now)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantStart.AddDate(0, 0, 7).Add(-time.Nanosecond), end)
			assert.Equal(t, time.Monday, start.Weekday())
		})
	}
}

func TestMostPopular(t *testing.T) {
	tests := []struct {
		name   string
		counts map[models.PlanKind]int
		want   *models.PlanKind
	}{
		{name: "пусто", counts: map[models.PlanKind]int{}, want: nil},
		{name: "явный лидер", counts: map[models.PlanKind]int{models.PlanShort: 1, models.PlanLong: 3}, want: ptr(models.PlanLong)},
		{name: "ничья по имени", counts: map[models.PlanKind]int{models.PlanShort: 2, models.PlanMedium: 2}, want: ptr(models.PlanMedium)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mostPopular(tt.counts))
		})
	}
}

func ptr(k models.PlanKind) *models.PlanKind { return &k }

func TestService_Weekly(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	// Подписка прошлой недели оформляется 05.03.2025.
	clk := clock.NewManual(time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC))
	l := ledger.New(repo, models.DefaultPlans(), 3, clk, newNoopLogger(), metrics.New(prometheus.NewRegistry()))

	var ids []int64
	for i := range 5 {
		u, _, err := l.Register(ctx, models.User{ExternalID: int64(100 + i)})
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	// Ещё активна к моменту расчёта.
	_, _, err := l.CreateOrExtend(ctx, ids[0], models.PlanLong, decimal.NewFromInt(2500), "old")
	require.NoError(t, err)

	clk.Set(time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC))
	_, _, err = l.CreateOrExtend(ctx, ids[1], models.PlanShort, decimal.NewFromInt(650), "a")
	require.NoError(t, err)
	_, _, err = l.CreateOrExtend(ctx, ids[2], models.PlanShort, decimal.NewFromInt(650), "b")
	require.NoError(t, err)
	_, _, err = l.CreateOrExtend(ctx, ids[3], models.PlanMedium, decimal.NewFromInt(1300), "c")
	require.NoError(t, err)

	svc := New(repo, clk, newNoopLogger())
	stats, err := svc.Weekly(ctx)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), stats.WeekStart)
	assert.Equal(t, 11, stats.WeekNumber)
	assert.Equal(t, 2025, stats.Year)
	assert.Equal(t, 4, stats.ActiveSubscriptions)
	assert.Equal(t, 1, stats.InactiveUsers)
	assert.Equal(t, 3, stats.NewSubscriptions)
	require.NotNil(t, stats.MostPopularPlan)
	assert.Equal(t, models.PlanShort, *stats.MostPopularPlan)
	assert.Equal(t, 2, stats.PlanCounts[models.PlanShort])

	stored, ok, err := repo.WeeklyStats(ctx, stats.WeekStart)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stats.NewSubscriptions, stored.NewSubscriptions)

	// Повторный расчёт перезаписывает ту же неделю.
	_, _, err = l.CreateOrExtend(ctx, ids[4], models.PlanMedium, decimal.NewFromInt(1300), "d")
	require.NoError(t, err)
	_, err = svc.Weekly(ctx)
	require.NoError(t, err)
	stored, _, err = repo.WeeklyStats(ctx, stats.WeekStart)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.NewSubscriptions)
	assert.Equal(t, 0, stored.InactiveUsers)
}

type failingRepo struct {
	*memory.Storage
}

func (failingRepo) CountUsers(context.Context) (int, error) {
	return 0, errors.New("db down")
}

func TestService_WeeklyError(t *testing.T) {
	svc := New(failingRepo{memory.New()}, clock.NewManual(time.Now()), newNoopLogger())
	stats, err := svc.Weekly(context.Background())
	require.Error(t, err)
	assert.Nil(t, stats)
	assert.Contains(t, err.Error(), "stats.Weekly")
}
