// Package payment реестр платёжных ссылок и применение оплат к подпискам.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// LinkRepository хранилище платёжных ссылок.
type LinkRepository interface {
	CreatePaymentLink(ctx context.Context, link models.PaymentLink) (*models.PaymentLink, error)
	AttachCheckout(ctx context.Context, token string, checkout models.Checkout) error
	PaymentLinkByToken(ctx context.Context, token string) (*models.PaymentLink, error)
	// SettlePaymentLink атомарно переводит settled из false в true.
	// Возвращает nil, если ссылки нет или переход уже выполнен.
	SettlePaymentLink(ctx context.Context, token string, now time.Time) (*models.PaymentLink, error)
	UnappliedSettledLinks(ctx context.Context) ([]models.PaymentLink, error)
}

// Gateway платёжный шлюз.
type Gateway interface {
	CreatePayment(ctx context.Context, link models.PaymentLink) (*models.Checkout, error)
	PaymentSucceeded(ctx context.Context, providerPaymentID string) (bool, error)
}

// Registry выпускает и гасит платёжные ссылки.
type Registry struct {
	repo    LinkRepository
	gateway Gateway
	plans   models.Plans
	clock   clock.Clock
	log     *slog.Logger
}

// NewRegistry создаёт Registry.
func NewRegistry(repo LinkRepository, gateway Gateway, plans models.Plans, clk clock.Clock, log *slog.Logger) *Registry {
	return &Registry{
		repo:    repo,
		gateway: gateway,
		plans:   plans,
		clock:   clk,
		log:     log,
	}
}

// Issue создаёт неоплаченную ссылку с ценой из таблицы тарифов и платёж у шлюза.
// При ошибке шлюза ссылка остаётся в хранилище без данных платежа.
func (r *Registry) Issue(ctx context.Context, userID int64, kind models.PlanKind) (*models.PaymentLink, error) {
	const op = "payment.Issue"

	plan, err := r.plans.Lookup(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	link, err := r.repo.CreatePaymentLink(ctx, models.PaymentLink{
		UserID:    userID,
		Token:     NewToken(),
		Plan:      kind,
		Amount:    plan.Price,
		CreatedAt: r.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	checkout, err := r.gateway.CreatePayment(ctx, *link)
	if err != nil {
		return nil, fmt.Errorf("%s: gateway: %w", op, err)
	}
	if err := r.repo.AttachCheckout(ctx, link.Token, *checkout); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	link.ProviderPaymentID = checkout.ProviderPaymentID
	link.PaymentURL = checkout.URL

	r.log.Info("payment link issued",
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.String("token", link.Token),
		slog.String("plan", string(kind)),
	)
	return link, nil
}

// Link возвращает ссылку по токену.
func (r *Registry) Link(ctx context.Context, token string) (*models.PaymentLink, error) {
	return r.repo.PaymentLinkByToken(ctx, token)
}

// Redeem проверяет оплату у шлюза и гасит ссылку. Возвращает ссылку только
// вызову, который выполнил переход в оплаченные; nil означает "оплата ещё
// не подтверждена" или "уже погашена".
func (r *Registry) Redeem(ctx context.Context, token string) (*models.PaymentLink, error) {
	const op = "payment.Redeem"

	link, err := r.repo.PaymentLinkByToken(ctx, token)
	if errors.Is(err, models.ErrPaymentLinkNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if link.Settled || link.ProviderPaymentID == "" {
		return nil, nil
	}

	paid, err := r.gateway.PaymentSucceeded(ctx, link.ProviderPaymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: gateway: %w", op, err)
	}
	if !paid {
		return nil, nil
	}
	return r.Settle(ctx, token)
}

// Settle гасит ссылку без обращения к шлюзу. Используется, когда оплату
// подтвердил подписанный вебхук.
func (r *Registry) Settle(ctx context.Context, token string) (*models.PaymentLink, error) {
	const op = "payment.Settle"

	link, err := r.repo.SettlePaymentLink(ctx, token, r.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if link != nil {
		r.log.Info("payment link settled", slog.String("op", op), slog.String("token", token))
	}
	return link, nil
}

// Unapplied оплаченные ссылки без применённого платежа.
func (r *Registry) Unapplied(ctx context.Context) ([]models.PaymentLink, error) {
	const op = "payment.Unapplied"
	links, err := r.repo.UnappliedSettledLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return links, nil
}

// NewToken 10 шестнадцатеричных символов.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
