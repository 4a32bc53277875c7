package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

func TestMatchText(t *testing.T) {
	kickoff := time.Date(2025, 5, 1, 19, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		match    models.Match
		isNew    bool
		contains []string
		excludes []string
	}{
		{
			name: "новый матч с ничьей",
			match: models.Match{
				HomeTeam: "Arsenal", AwayTeam: "Chelsea", Competition: "EPL", Kickoff: kickoff,
				Odds: models.Odds{Home: 4.25, Draw: 3.4, Away: 1.225, HasDraw: true},
			},
			isNew:    true,
			contains: []string{"НОВЫЙ МАТЧ!", "Arsenal - Chelsea", "EPL", "01.05.2025 19:30", "1: 4.25   X: 3.40   2: 1.225"},
		},
		{
			name: "поиск без ничьей",
			match: models.Match{
				HomeTeam: "A", AwayTeam: "B", Kickoff: kickoff,
				Odds: models.Odds{Home: 2, Away: 1.5},
			},
			contains: []string{"A - B", "1: 2.00   2: 1.500"},
			excludes: []string{"НОВЫЙ МАТЧ!", "X:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := MatchText(tt.match, tt.isNew)
			for _, s := range tt.contains {
				assert.Contains(t, text, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, text, s)
			}
		})
	}
}

func TestSettlementAndGrantText(t *testing.T) {
	end := time.Date(2025, 5, 8, 12, 0, 0, 0, time.UTC)

	assert.Contains(t, SettlementText("1 неделя", end, false), "Подписка активирована!")
	assert.Contains(t, SettlementText("1 неделя", end, true), "Подписка продлена!")
	assert.Contains(t, SettlementText("1 неделя", end, true), "08.05.2025 12:00")
	assert.Contains(t, GrantText("1 месяц", end, false), "Вам выдана подписка!")
	assert.Contains(t, GrantText("1 месяц", end, true), "продлена администратором")
	assert.Contains(t, RevokeText(), "аннулирована")
	assert.Contains(t, ExpiryWarningText("2 недели", end), "Тип подписки: 2 недели")
}

func TestWeeklyStatsText(t *testing.T) {
	plans := models.DefaultPlans()
	medium := models.PlanMedium
	stats := models.WeeklyStats{
		WeekStart:           time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		WeekEnd:             time.Date(2025, 3, 16, 23, 59, 59, 0, time.UTC),
		WeekNumber:          11,
		Year:                2025,
		ActiveSubscriptions: 4,
		InactiveUsers:       6,
		NewSubscriptions:    2,
	}

	text := WeeklyStatsText(stats, plans)
	assert.Contains(t, text, "неделя 11/2025 (10.03.2025 - 16.03.2025)")
	assert.Contains(t, text, "Активных подписок: 4")
	assert.Contains(t, text, "Пользователей без подписки: 6")
	assert.Contains(t, text, "нет данных")

	stats.MostPopularPlan = &medium
	assert.Contains(t, WeeklyStatsText(stats, plans), "Самая популярная подписка: 2 недели")
}
