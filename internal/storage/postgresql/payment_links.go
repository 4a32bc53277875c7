package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

const linkColumns = `id, user_id, token, plan, amount, created_at, settled, settled_at,
	provider_payment_id, payment_url`

func scanLink(row rowScanner) (*models.PaymentLink, error) {
	var (
		link      models.PaymentLink
		plan      string
		settledAt sql.NullTime
	)
	if err := row.Scan(&link.ID, &link.UserID, &link.Token, &plan, &link.Amount, &link.CreatedAt,
		&link.Settled, &settledAt, &link.ProviderPaymentID, &link.PaymentURL); err != nil {
		return nil, err
	}
	link.Plan = models.PlanKind(plan)
	link.CreatedAt = link.CreatedAt.UTC()
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		link.SettledAt = &t
	}
	return &link, nil
}

// CreatePaymentLink сохраняет новую ссылку. Токен уникален.
func (s *Storage) CreatePaymentLink(ctx context.Context, link models.PaymentLink) (*models.PaymentLink, error) {
	const op = "storage.postgresql.CreatePaymentLink"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	created, err := scanLink(s.DB.QueryRowContext(ctx, `INSERT INTO payment_links
		(user_id, token, plan, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+linkColumns,
		link.UserID, link.Token, string(link.Plan), link.Amount, link.CreatedAt))
	if isUniqueViolation(err, "payment_links_token_key") {
		return nil, fmt.Errorf("%s: token %s already exists", op, link.Token)
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	return created, nil
}

// AttachCheckout сохраняет данные платежа у провайдера.
func (s *Storage) AttachCheckout(ctx context.Context, token string, checkout models.Checkout) error {
	const op = "storage.postgresql.AttachCheckout"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, `UPDATE payment_links
		SET provider_payment_id = $2, payment_url = $3
		WHERE token = $1`, token, checkout.ProviderPaymentID, checkout.URL)
	if err != nil {
		return mapErr(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrPaymentLinkNotFound)
	}
	return nil
}

// PaymentLinkByToken ищет ссылку по токену.
func (s *Storage) PaymentLinkByToken(ctx context.Context, token string) (*models.PaymentLink, error) {
	const op = "storage.postgresql.PaymentLinkByToken"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	link, err := scanLink(s.DB.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM payment_links WHERE token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrPaymentLinkNotFound)
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	return link, nil
}

// SettlePaymentLink переводит ссылку в оплаченные одним условным UPDATE.
// Возвращает nil, если ссылки нет или её уже оплатил другой вызов.
func (s *Storage) SettlePaymentLink(ctx context.Context, token string, now time.Time) (*models.PaymentLink, error) {
	const op = "storage.postgresql.SettlePaymentLink"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	link, err := scanLink(s.DB.QueryRowContext(ctx, `UPDATE payment_links
		SET settled = TRUE, settled_at = $2
		WHERE token = $1 AND settled = FALSE
		RETURNING `+linkColumns, token, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	return link, nil
}

// UnappliedSettledLinks оплаченные ссылки без записи о применённом платеже.
func (s *Storage) UnappliedSettledLinks(ctx context.Context) ([]models.PaymentLink, error) {
	const op = "storage.postgresql.UnappliedSettledLinks"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT l.id, l.user_id, l.token, l.plan, l.amount,
			l.created_at, l.settled, l.settled_at, l.provider_payment_id, l.payment_url
		FROM payment_links l
		LEFT JOIN subscription_payments p ON p.payment_ref = l.token
		WHERE l.settled AND p.id IS NULL
		ORDER BY l.id`)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var links []models.PaymentLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return links, nil
}
