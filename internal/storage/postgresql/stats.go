package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// UpsertWeeklyStats сохраняет статистику недели, перезаписывая прежнюю.
func (s *Storage) UpsertWeeklyStats(ctx context.Context, stats models.WeeklyStats) error {
	const op = "storage.postgresql.UpsertWeeklyStats"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	counts, err := json.Marshal(stats.PlanCounts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var popular sql.NullString
	if stats.MostPopularPlan != nil {
		popular = sql.NullString{String: string(*stats.MostPopularPlan), Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `INSERT INTO weekly_stats
		(week_start, week_end, week_number, year, active_subscriptions, inactive_users,
		 new_subscriptions, most_popular_plan, plan_counts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (week_start) DO UPDATE SET
			week_end = EXCLUDED.week_end,
			week_number = EXCLUDED.week_number,
			year = EXCLUDED.year,
			active_subscriptions = EXCLUDED.active_subscriptions,
			inactive_users = EXCLUDED.inactive_users,
			new_subscriptions = EXCLUDED.new_subscriptions,
			most_popular_plan = EXCLUDED.most_popular_plan,
			plan_counts = EXCLUDED.plan_counts`,
		stats.WeekStart, stats.WeekEnd, stats.WeekNumber, stats.Year, stats.ActiveSubscriptions,
		stats.InactiveUsers, stats.NewSubscriptions, popular, string(counts))
	if err != nil {
		return mapErr(op, err)
	}
	return nil
}

// WeeklyStats читает сохранённую статистику недели.
func (s *Storage) WeeklyStats(ctx context.Context, weekStart time.Time) (*models.WeeklyStats, bool, error) {
	const op = "storage.postgresql.WeeklyStats"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}

	var (
		stats   models.WeeklyStats
		popular sql.NullString
		counts  []byte
	)
	err := s.DB.QueryRowContext(ctx, `SELECT week_start, week_end, week_number, year,
			active_subscriptions, inactive_users, new_subscriptions, most_popular_plan, plan_counts
		FROM weekly_stats WHERE week_start = $1`, weekStart).Scan(
		&stats.WeekStart, &stats.WeekEnd, &stats.WeekNumber, &stats.Year, &stats.ActiveSubscriptions,
		&stats.InactiveUsers, &stats.NewSubscriptions, &popular, &counts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(op, err)
	}

	stats.WeekStart = stats.WeekStart.UTC()
	stats.WeekEnd = stats.WeekEnd.UTC()
	if popular.Valid {
		kind := models.PlanKind(popular.String)
		stats.MostPopularPlan = &kind
	}
	stats.PlanCounts = make(map[models.PlanKind]int)
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &stats.PlanCounts); err != nil {
			return nil, false, fmt.Errorf("%s: plan_counts: %w", op, err)
		}
	}
	return &stats, true, nil
}
