package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

const subscriptionColumns = `id, user_id, start_date, end_date, plan, amount_paid, payment_ref`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub  models.Subscription
		plan string
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.StartDate, &sub.EndDate, &plan,
		&sub.AmountPaid, &sub.PaymentRef); err != nil {
		return nil, err
	}
	sub.Plan = models.PlanKind(plan)
	sub.StartDate = sub.StartDate.UTC()
	sub.EndDate = sub.EndDate.UTC()
	return &sub, nil
}

// ActiveSubscription возвращает подписку с end >= now или nil.
func (s *Storage) ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	const op = "storage.postgresql.ActiveSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, `SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND end_date >= $2
		ORDER BY end_date DESC LIMIT 1`, userID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sub, nil
}

// MutateActiveSubscription в одной транзакции блокирует строку пользователя,
// читает активную подписку, применяет fn и записывает подписку вместе
// с записью о платеже. Повторный payment_ref откатывает транзакцию
// с ErrPaymentApplied.
func (s *Storage) MutateActiveSubscription(ctx context.Context, userID int64, now time.Time, fn models.SubscriptionMutation) (*models.Subscription, error) {
	const op = "storage.postgresql.MutateActiveSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	if err != nil {
		return nil, mapErr(op, err)
	}

	current, err := scanSubscription(tx.QueryRowContext(ctx, `SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND end_date >= $2
		ORDER BY end_date DESC LIMIT 1`, userID, now))
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, mapErr(op, err)
	}

	update, err := fn(current)
	if err != nil {
		return nil, err
	}
	if update == nil || update.Subscription == nil {
		return nil, nil
	}

	next := *update.Subscription
	next.UserID = userID
	if next.ID == 0 {
		err = tx.QueryRowContext(ctx, `INSERT INTO subscriptions
			(user_id, start_date, end_date, plan, amount_paid, payment_ref)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			next.UserID, next.StartDate, next.EndDate, string(next.Plan), next.AmountPaid, next.PaymentRef).Scan(&next.ID)
		if err != nil {
			return nil, mapErr(op, err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `UPDATE subscriptions
			SET start_date = $2, end_date = $3, plan = $4, amount_paid = $5, payment_ref = $6
			WHERE id = $1 AND user_id = $7`,
			next.ID, next.StartDate, next.EndDate, string(next.Plan), next.AmountPaid, next.PaymentRef, userID)
		if err != nil {
			return nil, mapErr(op, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, mapErr(op, err)
		}
		if affected == 0 {
			return nil, fmt.Errorf("%s: subscription %d not found", op, next.ID)
		}
	}

	if p := update.Payment; p != nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO subscription_payments
			(subscription_id, payment_ref, plan, amount, applied_at)
			VALUES ($1, $2, $3, $4, $5)`,
			next.ID, p.PaymentRef, string(p.Plan), p.Amount, p.AppliedAt)
		if isUniqueViolation(err, "subscription_payments_payment_ref_key") {
			return nil, fmt.Errorf("%s: %w", op, models.ErrPaymentApplied)
		}
		if err != nil {
			return nil, mapErr(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapErr(op, err)
	}
	return &next, nil
}

// ActiveSubscribers возвращает пользователей с действующей подпиской.
func (s *Storage) ActiveSubscribers(ctx context.Context, now time.Time) ([]models.User, error) {
	const op = "storage.postgresql.ActiveSubscribers"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT u.id, u.external_id, u.username, u.first_name,
			u.last_name, u.registered_at, u.trial_left
		FROM users u
		WHERE EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.end_date >= $1)
		ORDER BY u.id`, now)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// ExpiringSubscriptions возвращает подписки с окончанием в [from, to] вместе с владельцами.
func (s *Storage) ExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]models.ExpiringSubscription, error) {
	const op = "storage.postgresql.ExpiringSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT u.id, u.external_id, u.username, u.first_name,
			u.last_name, u.registered_at, u.trial_left,
			s.id, s.user_id, s.start_date, s.end_date, s.plan, s.amount_paid, s.payment_ref
		FROM subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE s.end_date BETWEEN $1 AND $2
		ORDER BY s.end_date`, from, to)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var res []models.ExpiringSubscription
	for rows.Next() {
		var (
			item models.ExpiringSubscription
			plan string
		)
		u, sub := &item.User, &item.Subscription
		if err := rows.Scan(&u.ID, &u.ExternalID, &u.Username, &u.FirstName, &u.LastName,
			&u.RegisteredAt, &u.TrialLeft,
			&sub.ID, &sub.UserID, &sub.StartDate, &sub.EndDate, &plan, &sub.AmountPaid, &sub.PaymentRef); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sub.Plan = models.PlanKind(plan)
		u.RegisteredAt = u.RegisteredAt.UTC()
		sub.StartDate = sub.StartDate.UTC()
		sub.EndDate = sub.EndDate.UTC()
		res = append(res, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// CountActiveSubscriptions число подписок с end >= now.
func (s *Storage) CountActiveSubscriptions(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.postgresql.CountActiveSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE end_date >= $1`, now).Scan(&count); err != nil {
		return 0, mapErr(op, err)
	}
	return count, nil
}

// CountSubscriptionsStartedBetween число подписок по тарифам с началом в [from, to].
func (s *Storage) CountSubscriptionsStartedBetween(ctx context.Context, from, to time.Time) (map[models.PlanKind]int, error) {
	const op = "storage.postgresql.CountSubscriptionsStartedBetween"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT plan, COUNT(*)
		FROM subscriptions
		WHERE start_date BETWEEN $1 AND $2
		GROUP BY plan`, from, to)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	counts := make(map[models.PlanKind]int)
	for rows.Next() {
		var (
			plan  string
			count int
		)
		if err := rows.Scan(&plan, &count); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		counts[models.PlanKind(plan)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return counts, nil
}
