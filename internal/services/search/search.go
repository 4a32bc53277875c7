// Package search поиск матчей по запросу пользователя с учётом пробной квоты.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// ErrAccessDenied нет ни активной подписки, ни пробных поисков.
var ErrAccessDenied = errors.New("access denied")

// Ledger часть сервиса подписок, нужная поиску.
type Ledger interface {
	UserByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	GetActive(ctx context.Context, userID int64) (*models.Subscription, error)
	HasAccess(ctx context.Context, user *models.User) (bool, error)
	ConsumeTrial(ctx context.Context, userID int64) (int, error)
}

// SnapshotSource источник снимка фида.
type SnapshotSource interface {
	Snapshot(ctx context.Context) []models.Match
}

// RangeFilter фильтр снимка по диапазону цен.
type RangeFilter interface {
	FilterRange(snapshot []models.Match, lo, hi float64) []models.Match
}

// Result результат поиска.
type Result struct {
	Matches    []models.Match `json:"matches"`
	Subscribed bool           `json:"subscribed"`
	TrialLeft  int            `json:"trial_left"`
}

// Service поиск по запросу.
type Service struct {
	ledger   Ledger
	source   SnapshotSource
	filter   RangeFilter
	min, max float64
	log      *slog.Logger
}

// New создаёт Service. min и max задают диапазон цен включительно.
func New(ledger Ledger, source SnapshotSource, filter RangeFilter, lo, hi float64, log *slog.Logger) *Service {
	return &Service{
		ledger: ledger,
		source: source,
		filter: filter,
		min:    lo,
		max:    hi,
		log:    log,
	}
}

// Search проверяет доступ, берёт снимок и фильтрует его. Пробный поиск
// списывается только если найден хотя бы один матч.
func (s *Service) Search(ctx context.Context, externalID int64) (*Result, error) {
	const op = "search.Search"

	user, err := s.ledger.UserByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	allowed, err := s.ledger.HasAccess(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !allowed {
		return nil, fmt.Errorf("%s: %w", op, ErrAccessDenied)
	}
	active, err := s.ledger.GetActive(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	subscribed := active != nil

	matches := s.filter.FilterRange(s.source.Snapshot(ctx), s.min, s.max)
	res := &Result{Matches: matches, Subscribed: subscribed, TrialLeft: user.TrialLeft}

	if !subscribed && len(matches) > 0 {
		left, err := s.ledger.ConsumeTrial(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.TrialLeft = left
	}

	s.log.Info("search completed",
		slog.String("op", op),
		slog.Int64("external_id", externalID),
		slog.Int("matches", len(matches)),
		slog.Bool("subscribed", subscribed),
		slog.Int("trial_left", res.TrialLeft),
	)
	return res, nil
}
