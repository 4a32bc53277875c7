// Package ledger ведёт временные окна доступа пользователей: создание,
// продление и отзыв подписки, пробные поиски, регистрацию пользователей
// и админскую выдачу по имени.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/metrics"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// revokeOffset насколько раньше текущего момента ставится конец отозванной подписки.
const revokeOffset = time.Minute

// Repository хранилище пользователей и подписок.
type Repository interface {
	GetOrCreateUser(ctx context.Context, u models.User) (*models.User, bool, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	ConsumeTrial(ctx context.Context, userID int64) (int, error)
	ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	// MutateActiveSubscription выполняет чтение активной подписки, fn и запись
	// одной транзакцией под блокировкой пользователя.
	MutateActiveSubscription(ctx context.Context, userID int64, now time.Time, fn models.SubscriptionMutation) (*models.Subscription, error)
}

// Ledger сервис подписок.
type Ledger struct {
	repo         Repository
	plans        models.Plans
	initialTrial int
	clock        clock.Clock
	log          *slog.Logger
	metrics      *metrics.Metrics
}

// New создаёт Ledger.
func New(repo Repository, plans models.Plans, initialTrial int, clk clock.Clock, log *slog.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{
		repo:         repo,
		plans:        plans,
		initialTrial: initialTrial,
		clock:        clk,
		log:          log,
		metrics:      m,
	}
}

// Plans возвращает таблицу тарифов.
func (l *Ledger) Plans() models.Plans {
	return l.plans
}

// Register возвращает пользователя по внешнему id, создавая его при первом обращении.
func (l *Ledger) Register(ctx context.Context, u models.User) (*models.User, bool, error) {
	const op = "ledger.Register"

	u.RegisteredAt = l.clock.Now()
	u.TrialLeft = l.initialTrial
	user, created, err := l.repo.GetOrCreateUser(ctx, u)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		l.log.Info("user registered", slog.String("op", op), slog.Int64("external_id", user.ExternalID))
	}
	return user, created, nil
}

// User ищет пользователя по внутреннему id.
func (l *Ledger) User(ctx context.Context, id int64) (*models.User, error) {
	return l.repo.UserByID(ctx, id)
}

// UserByExternalID ищет пользователя по идентификатору чата.
func (l *Ledger) UserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	return l.repo.UserByExternalID(ctx, externalID)
}

// GetActive возвращает подписку с end >= now или nil.
func (l *Ledger) GetActive(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "ledger.GetActive"
	sub, err := l.repo.ActiveSubscription(ctx, userID, l.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// HasAccess доступ есть при активной подписке или ненулевом остатке пробных поисков.
func (l *Ledger) HasAccess(ctx context.Context, user *models.User) (bool, error) {
	active, err := l.GetActive(ctx, user.ID)
	if err != nil {
		return false, err
	}
	return active != nil || user.TrialLeft > 0, nil
}

// ConsumeTrial списывает один пробный поиск и возвращает остаток.
// Для исчерпанной квоты и неизвестного пользователя возвращает 0.
func (l *Ledger) ConsumeTrial(ctx context.Context, userID int64) (int, error) {
	const op = "ledger.ConsumeTrial"
	left, err := l.repo.ConsumeTrial(ctx, userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return 0, nil
	}
	if err != nil {
		l.metrics.LedgerMutation("consume_trial", false)
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	l.metrics.LedgerMutation("consume_trial", true)
	return left, nil
}

// CreateOrExtend продлевает активную подписку на длительность тарифа от
// max(now, end) или создаёт новую с началом now. Второе значение сообщает,
// было ли это продление.
func (l *Ledger) CreateOrExtend(ctx context.Context, userID int64, kind models.PlanKind, amount decimal.Decimal, paymentRef string) (*models.Subscription, bool, error) {
	const op = "ledger.CreateOrExtend"

	plan, err := l.plans.Lookup(kind)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	var renewal bool
	sub, err := l.mutate(ctx, userID, func(now time.Time) models.SubscriptionMutation {
		return func(active *models.Subscription) (*models.SubscriptionUpdate, error) {
			payment := &models.Payment{PaymentRef: paymentRef, Plan: kind, Amount: amount, AppliedAt: now}
			if active != nil {
				renewal = true
				base := active.EndDate
				if now.After(base) {
					base = now
				}
				active.EndDate = base.Add(plan.Duration)
				active.AmountPaid = active.AmountPaid.Add(amount)
				active.PaymentRef = paymentRef
				active.Plan = kind
				return &models.SubscriptionUpdate{Subscription: active, Payment: payment}, nil
			}
			renewal = false
			return &models.SubscriptionUpdate{
				Subscription: &models.Subscription{
					UserID:     userID,
					StartDate:  now,
					EndDate:    now.Add(plan.Duration),
					Plan:       kind,
					AmountPaid: amount,
					PaymentRef: paymentRef,
				},
				Payment: payment,
			}, nil
		}
	})
	l.metrics.LedgerMutation("create_or_extend", err == nil)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	l.log.Info("subscription applied",
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.String("plan", string(kind)),
		slog.Bool("renewal", renewal),
		slog.Time("end_date", sub.EndDate),
		slog.String("payment_ref", paymentRef),
	)
	return sub, renewal, nil
}

// Revoke делает активную подписку истёкшей минуту назад.
// Возвращает false, если активной подписки не было.
func (l *Ledger) Revoke(ctx context.Context, userID int64) (bool, error) {
	const op = "ledger.Revoke"

	sub, err := l.mutate(ctx, userID, func(now time.Time) models.SubscriptionMutation {
		return func(active *models.Subscription) (*models.SubscriptionUpdate, error) {
			if active == nil {
				return nil, nil
			}
			active.EndDate = now.Add(-revokeOffset)
			if active.StartDate.After(active.EndDate) {
				active.StartDate = active.EndDate
			}
			return &models.SubscriptionUpdate{Subscription: active}, nil
		}
	})
	l.metrics.LedgerMutation("revoke", err == nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if sub == nil {
		return false, nil
	}
	l.log.Info("subscription revoked", slog.String("op", op), slog.Int64("user_id", userID))
	return true, nil
}

// GrantByUsername админская выдача тарифа по имени пользователя.
// Тариф и пользователь проверяются до любых изменений.
func (l *Ledger) GrantByUsername(ctx context.Context, username string, kind models.PlanKind) (*models.Subscription, *models.User, bool, error) {
	const op = "ledger.GrantByUsername"

	plan, err := l.plans.Lookup(kind)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%s: %w", op, err)
	}
	user, err := l.repo.UserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return nil, nil, false, fmt.Errorf("%s: %w", op, err)
	}

	ref := "admin_" + shortID()
	sub, renewal, err := l.CreateOrExtend(ctx, user.ID, kind, plan.Price, ref)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return sub, user, renewal, nil
}

// RevokeByUsername админский отзыв подписки по имени пользователя.
func (l *Ledger) RevokeByUsername(ctx context.Context, username string) (*models.User, bool, error) {
	const op = "ledger.RevokeByUsername"

	user, err := l.repo.UserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	found, err := l.Revoke(ctx, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return user, found, nil
}

// mutate выполняет мутацию и один раз повторяет её целиком при конфликте записи.
func (l *Ledger) mutate(ctx context.Context, userID int64, build func(now time.Time) models.SubscriptionMutation) (*models.Subscription, error) {
	now := l.clock.Now()
	sub, err := l.repo.MutateActiveSubscription(ctx, userID, now, build(now))
	if !errors.Is(err, models.ErrConflict) {
		return sub, err
	}

	l.log.Warn("subscription mutation conflict, retrying", slog.Int64("user_id", userID), sl.Err(err))
	now = l.clock.Now()
	return l.repo.MutateActiveSubscription(ctx, userID, now, build(now))
}

func normalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
