package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/metrics"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/notification"
	"github.com/magabrotheeeer/odds-notifier/internal/rabbitmq"
)

// Пути подтверждения оплаты.
const (
	PathPoll      = "poll"
	PathWebhook   = "webhook"
	PathReconcile = "reconcile"
)

// Ledger часть сервиса подписок, нужная для применения оплаты.
type Ledger interface {
	CreateOrExtend(ctx context.Context, userID int64, kind models.PlanKind, amount decimal.Decimal, paymentRef string) (*models.Subscription, bool, error)
	User(ctx context.Context, id int64) (*models.User, error)
}

// Notifier отправляет текст пользователю.
type Notifier interface {
	NotifyText(ctx context.Context, recipient int64, text string) error
}

// Settlement применяет подтверждённые оплаты к подпискам.
// Токен ссылки служит ссылкой на платёж в подписке, поэтому повторное
// применение той же ссылки отклоняется хранилищем.
type Settlement struct {
	registry *Registry
	ledger   Ledger
	notifier Notifier
	plans    models.Plans
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewSettlement создаёт Settlement.
func NewSettlement(registry *Registry, ledger Ledger, notifier Notifier, plans models.Plans, log *slog.Logger, m *metrics.Metrics) *Settlement {
	return &Settlement{
		registry: registry,
		ledger:   ledger,
		notifier: notifier,
		plans:    plans,
		log:      log,
		metrics:  m,
	}
}

// CheckPayment проверяет оплату по токену и применяет её. nil без ошибки
// означает, что оплата не подтверждена или уже обработана.
func (s *Settlement) CheckPayment(ctx context.Context, token string) (*models.SettlementResult, error) {
	const op = "payment.CheckPayment"

	link, err := s.registry.Redeem(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if link == nil {
		return nil, nil
	}
	res, err := s.apply(ctx, *link, PathPoll)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// HandleSettlementMessage обрабатывает событие оплаты из очереди.
// Ошибка возвращается только если не удалось погасить ссылку: тогда сообщение
// вернётся в очередь. Сбой применения к подписке подберёт Reconcile.
func (s *Settlement) HandleSettlementMessage(ctx context.Context, body []byte) error {
	const op = "payment.HandleSettlementMessage"
	log := s.log.With(slog.String("op", op))

	var event models.SettlementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("malformed settlement event, dropping", sl.Err(err))
		return nil
	}
	if event.Token == "" {
		log.Error("settlement event without token, dropping")
		return nil
	}

	link, err := s.registry.Settle(ctx, event.Token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if link == nil {
		log.Info("payment link already settled or unknown", slog.String("token", event.Token))
		return nil
	}

	if _, err := s.apply(ctx, *link, PathWebhook); err != nil {
		log.Error("failed to apply settled payment, left for reconciliation",
			slog.String("token", event.Token), sl.Err(err))
	}
	return nil
}

// Reconcile применяет оплаченные ссылки, платёж по которым не дошёл до подписки.
// Возвращает число применённых.
func (s *Settlement) Reconcile(ctx context.Context) (int, error) {
	const op = "payment.Reconcile"

	links, err := s.registry.Unapplied(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	applied := 0
	for _, link := range links {
		res, err := s.apply(ctx, link, PathReconcile)
		if err != nil {
			s.log.Error("reconcile failed", slog.String("op", op), slog.String("token", link.Token), sl.Err(err))
			continue
		}
		if res != nil {
			applied++
		}
	}
	if applied > 0 {
		s.log.Info("reconciled settled payments", slog.String("op", op), slog.Int("applied", applied))
	}
	return applied, nil
}

func (s *Settlement) apply(ctx context.Context, link models.PaymentLink, path string) (*models.SettlementResult, error) {
	sub, renewal, err := s.ledger.CreateOrExtend(ctx, link.UserID, link.Plan, link.Amount, link.Token)
	if errors.Is(err, models.ErrPaymentApplied) {
		s.log.Info("payment already applied", slog.String("token", link.Token), slog.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.metrics.PaymentSettled(path)

	if user, err := s.ledger.User(ctx, link.UserID); err != nil {
		s.log.Error("failed to load user for settlement notice", slog.Int64("user_id", link.UserID), sl.Err(err))
	} else {
		text := notification.SettlementText(s.plans.Title(link.Plan), sub.EndDate, renewal)
		if err := s.notifier.NotifyText(ctx, user.ExternalID, text); err != nil {
			s.log.Error("failed to notify user about settlement", slog.Int64("user_id", link.UserID), sl.Err(err))
		}
	}

	return &models.SettlementResult{Link: link, Subscription: *sub, IsRenewal: renewal}, nil
}

// SettlementQueue публикует события оплаты из вебхука в очередь.
type SettlementQueue struct {
	mu sync.Mutex
	ch rabbitmq.Channel
}

// NewSettlementQueue создаёт SettlementQueue.
func NewSettlementQueue(ch rabbitmq.Channel) *SettlementQueue {
	return &SettlementQueue{ch: ch}
}

// Enqueue публикует событие в обменник payments.
func (q *SettlementQueue) Enqueue(ctx context.Context, event models.SettlementEvent) error {
	const op = "payment.Enqueue"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := rabbitmq.PublishMessage(q.ch, rabbitmq.ExchangePayments, rabbitmq.RoutingKeySettled, event); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
