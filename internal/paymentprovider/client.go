// Package paymentprovider клиент платёжного шлюза ЮKassa.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/magabrotheeeer/odds-notifier/internal/config"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// MetadataToken ключ метаданных платежа с токеном платёжной ссылки.
const MetadataToken = "token"

// ErrNoConfirmationURL шлюз не вернул ссылку на оплату.
var ErrNoConfirmationURL = errors.New("payment has no confirmation url")

// Client клиент ЮKassa.
type Client struct {
	shopID     string
	secretKey  string
	apiURL     string
	returnURL  string
	currency   string
	httpClient *http.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient создаёт новый клиент ЮKassa.
func NewClient(cfg config.Payment, opts ...Option) *Client {
	c := &Client{
		shopID:     cfg.ShopID,
		secretKey:  cfg.SecretKey,
		apiURL:     cfg.APIURL,
		returnURL:  cfg.ReturnURL,
		currency:   cfg.Currency,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if c.apiURL == "" {
		c.apiURL = "https://api.yookassa.ru/v3"
	}
	if c.currency == "" {
		c.currency = "RUB"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.shopID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreatePayment создаёт платёж с переадресацией на страницу оплаты.
// Токен ссылки передаётся ключом идемпотентности и в метаданных.
func (c *Client) CreatePayment(ctx context.Context, link models.PaymentLink) (*models.Checkout, error) {
	const op = "paymentprovider.CreatePayment"

	body := CreatePaymentRequest{
		Amount:       Amount{Value: link.Amount.StringFixed(2), Currency: c.currency},
		Capture:      true,
		Confirmation: Confirmation{Type: "redirect", ReturnURL: c.returnURL},
		Description:  fmt.Sprintf("Подписка %s", link.Plan),
		Metadata:     map[string]string{MetadataToken: link.Token},
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Idempotence-Key", link.Token)

	var payment PaymentResponse
	if err := c.do(req, &payment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payment.Confirmation == nil || payment.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoConfirmationURL)
	}
	return &models.Checkout{ProviderPaymentID: payment.ID, URL: payment.Confirmation.ConfirmationURL}, nil
}

// GetPayment запрашивает платёж по id.
func (c *Client) GetPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	const op = "paymentprovider.GetPayment"

	req, err := c.newRequest(ctx, http.MethodGet, "/payments/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var payment PaymentResponse
	if err := c.do(req, &payment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &payment, nil
}

// PaymentSucceeded сообщает, что платёж оплачен.
func (c *Client) PaymentSucceeded(ctx context.Context, id string) (bool, error) {
	payment, err := c.GetPayment(ctx, id)
	if err != nil {
		return false, err
	}
	return payment.Status == StatusSucceeded, nil
}
