package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentLink намерение покупки. Settled переходит из false в true ровно один раз.
type PaymentLink struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Token             string          `json:"token"`
	Plan              PlanKind        `json:"plan"`
	Amount            decimal.Decimal `json:"amount"`
	CreatedAt         time.Time       `json:"created_at"`
	Settled           bool            `json:"settled"`
	SettledAt         *time.Time      `json:"settled_at,omitempty"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty"`
	PaymentURL        string          `json:"payment_url,omitempty"`
}

// Checkout ответ платёжного шлюза на создание платежа.
type Checkout struct {
	ProviderPaymentID string
	URL               string
}

// SettlementEvent сообщение об оплате из вебхука.
type SettlementEvent struct {
	Token             string `json:"token"`
	ProviderPaymentID string `json:"provider_payment_id"`
}

// SettlementResult итог применения оплаты к подписке.
type SettlementResult struct {
	Link         PaymentLink  `json:"link"`
	Subscription Subscription `json:"subscription"`
	IsRenewal    bool         `json:"is_renewal"`
}
