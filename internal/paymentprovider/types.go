package paymentprovider

import "time"

// Статусы платежа ЮKassa.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// EventPaymentSucceeded событие вебхука об успешной оплате.
const EventPaymentSucceeded = "payment.succeeded"

// Amount представляет денежную сумму.
type Amount struct {
	Value    string `json:"value"`    // сумма, например "650.00"
	Currency string `json:"currency"` // валюта, например "RUB"
}

// Confirmation способ подтверждения платежа.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// CreatePaymentRequest представляет запрос на создание платежа.
type CreatePaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"` // token платёжной ссылки
}

// PaymentResponse платёж в ЮKassa.
type PaymentResponse struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Notification тело вебхука ЮKassa.
type Notification struct {
	Type   string          `json:"type"`
	Event  string          `json:"event"`
	Object PaymentResponse `json:"object"`
}
