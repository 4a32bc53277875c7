// Package stats еженедельная статистика подписок.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// Repository источник агрегатов.
type Repository interface {
	CountUsers(ctx context.Context) (int, error)
	CountActiveSubscriptions(ctx context.Context, now time.Time) (int, error)
	CountSubscriptionsStartedBetween(ctx context.Context, from, to time.Time) (map[models.PlanKind]int, error)
	UpsertWeeklyStats(ctx context.Context, stats models.WeeklyStats) error
}

// Service считает статистику.
type Service struct {
	repo  Repository
	clock clock.Clock
	log   *slog.Logger
}

// New создаёт Service.
func New(repo Repository, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{repo: repo, clock: clk, log: log}
}

// WeekBounds понедельник 00:00 UTC текущей недели и последний наносекундный
// момент воскресенья.
func WeekBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	offset := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// Weekly считает статистику текущей недели и сохраняет её.
func (s *Service) Weekly(ctx context.Context) (*models.WeeklyStats, error) {
	const op = "stats.Weekly"

	now := s.clock.Now()
	start, end := WeekBounds(now)

	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	active, err := s.repo.CountActiveSubscriptions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	counts, err := s.repo.CountSubscriptionsStartedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	year, week := start.ISOWeek()
	stats := models.WeeklyStats{
		WeekStart:           start,
		WeekEnd:             end,
		WeekNumber:          week,
		Year:                year,
		ActiveSubscriptions: active,
		InactiveUsers:       max(users-active, 0),
		PlanCounts:          counts,
		MostPopularPlan:     mostPopular(counts),
	}
	for _, n := range counts {
		stats.NewSubscriptions += n
	}

	if err := s.repo.UpsertWeeklyStats(ctx, stats); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("weekly stats computed",
		slog.String("op", op),
		slog.Int("week", week),
		slog.Int("active", active),
		slog.Int("new", stats.NewSubscriptions),
	)
	return &stats, nil
}

// mostPopular тариф с наибольшим числом подписок, при равенстве меньший по имени.
func mostPopular(counts map[models.PlanKind]int) *models.PlanKind {
	kinds := make([]models.PlanKind, 0, len(counts))
	for kind, n := range counts {
		if n > 0 {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return nil
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	return &kinds[0]
}
