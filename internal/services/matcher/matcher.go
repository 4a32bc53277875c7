// Package matcher отбирает матчи снимка под целевые пары коэффициентов
// и ведёт флаг уведомления каждого матча.
package matcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// Repository хранит матчи, прошедшие целевые правила.
type Repository interface {
	// SaveMatch вставляет матч или обновляет его данные, сохраняя флаг Notified.
	// Возвращает сохранённую запись.
	SaveMatch(ctx context.Context, m models.Match) (*models.Match, error)
	// MarkMatchNotified выставляет флаг уведомления. Неизвестный id не ошибка.
	MarkMatchNotified(ctx context.Context, id string) error
}

// Matcher применяет целевые правила к снимку.
type Matcher struct {
	repo  Repository
	rules []models.TargetRule
	clock clock.Clock
	log   *slog.Logger
}

// New создаёт Matcher.
func New(repo Repository, rules []models.TargetRule, clk clock.Clock, log *slog.Logger) *Matcher {
	return &Matcher{
		repo:  repo,
		rules: rules,
		clock: clk,
		log:   log,
	}
}

// FindQualifying возвращает ещё не уведомлённые будущие матчи, цены которых
// совпадают с одним из правил. Каждый такой матч сохраняется, сохранённый
// флаг уведомления главнее флага из снимка.
func (m *Matcher) FindQualifying(ctx context.Context, snapshot []models.Match) ([]models.Match, error) {
	const op = "matcher.FindQualifying"
	now := m.clock.Now()

	var qualifying []models.Match
	for _, match := range snapshot {
		if match.Kickoff.Before(now) || !match.HasTwoWayPrice() {
			continue
		}
		if !m.MatchesTarget(match.Odds) {
			continue
		}
		stored, err := m.repo.SaveMatch(ctx, match)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if stored.Notified {
			continue
		}
		qualifying = append(qualifying, *stored)
	}

	m.log.Debug("qualifying matches selected",
		slog.String("op", op),
		slog.Int("snapshot", len(snapshot)),
		slog.Int("qualifying", len(qualifying)),
	)
	return qualifying, nil
}

// MatchesTarget проверяет пару цен на совпадение хотя бы с одним правилом.
func (m *Matcher) MatchesTarget(odds models.Odds) bool {
	home := decimal.NewFromFloat(odds.Home)
	away := decimal.NewFromFloat(odds.Away)
	for _, rule := range m.rules {
		if home.Round(rule.HomePlaces).Equal(rule.Home) && away.Round(rule.AwayPlaces).Equal(rule.Away) {
			return true
		}
	}
	return false
}

// FilterRange отбор для ручного поиска: будущие матчи с обеими ценами,
// у которых хотя бы одна цена лежит в [lo, hi] включительно.
func (m *Matcher) FilterRange(snapshot []models.Match, lo, hi float64) []models.Match {
	now := m.clock.Now()

	result := make([]models.Match, 0)
	for _, match := range snapshot {
		if match.Kickoff.Before(now) || !match.HasTwoWayPrice() {
			continue
		}
		if inRange(match.Odds.Home, lo, hi) || inRange(match.Odds.Away, lo, hi) {
			result = append(result, match)
		}
	}
	return result
}

// MarkNotified фиксирует, что о матче уже сообщили. Повторный вызов ничего не меняет.
func (m *Matcher) MarkNotified(ctx context.Context, id string) error {
	const op = "matcher.MarkNotified"
	if err := m.repo.MarkMatchNotified(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func inRange(price, lo, hi float64) bool {
	return price >= lo && price <= hi
}
