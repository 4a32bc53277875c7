package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription описывает временное окно доступа пользователя.
// Для одного пользователя продлевается только одна текущая запись,
// строки никогда не удаляются.
type Subscription struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
	Plan       PlanKind        `json:"plan"`
	AmountPaid decimal.Decimal `json:"amount_paid"` // Накопленная сумма по всем продлениям
	PaymentRef string          `json:"payment_ref"` // Ссылка на последний платёж
}

// ActiveAt сообщает, действует ли подписка в момент now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return !s.EndDate.Before(now)
}

// Payment фиксирует одно применённое к подписке начисление.
// PaymentRef уникален, повторное применение отклоняется хранилищем.
type Payment struct {
	SubscriptionID int64           `json:"subscription_id"`
	PaymentRef     string          `json:"payment_ref"`
	Plan           PlanKind        `json:"plan"`
	Amount         decimal.Decimal `json:"amount"`
	AppliedAt      time.Time       `json:"applied_at"`
}

// SubscriptionUpdate результат чистой мутации над текущей подпиской.
// Subscription с нулевым ID вставляется, иначе обновляется.
type SubscriptionUpdate struct {
	Subscription *Subscription
	Payment      *Payment
}

// SubscriptionMutation получает текущую активную подписку (или nil)
// и возвращает изменение. nil без ошибки означает, что менять нечего.
type SubscriptionMutation func(active *Subscription) (*SubscriptionUpdate, error)

// ExpiringSubscription подписка, истекающая в ближайшее время, вместе с владельцем.
type ExpiringSubscription struct {
	User         User
	Subscription Subscription
}
