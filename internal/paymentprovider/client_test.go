package paymentprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/odds-notifier/internal/config"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

func newTestClient(url string) *Client {
	return NewClient(config.Payment{
		ShopID:    "shop",
		SecretKey: "secret",
		APIURL:    url,
		ReturnURL: "https://t.me/bot",
	})
}

func TestClient_CreatePayment(t *testing.T) {
	var gotReq CreatePaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "abc1234567", r.Header.Get("Idempotence-Key"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"pay-1","status":"pending","confirmation":{"type":"redirect","confirmation_url":"https://yoomoney.ru/checkout/pay-1"}}`))
	}))
	defer srv.Close()

	checkout, err := newTestClient(srv.URL).CreatePayment(context.Background(), models.PaymentLink{
		Token:  "abc1234567",
		Plan:   models.PlanShort,
		Amount: decimal.NewFromInt(650),
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", checkout.ProviderPaymentID)
	assert.Equal(t, "https://yoomoney.ru/checkout/pay-1", checkout.URL)

	assert.Equal(t, Amount{Value: "650.00", Currency: "RUB"}, gotReq.Amount)
	assert.True(t, gotReq.Capture)
	assert.Equal(t, "redirect", gotReq.Confirmation.Type)
	assert.Equal(t, "https://t.me/bot", gotReq.Confirmation.ReturnURL)
	assert.Equal(t, "abc1234567", gotReq.Metadata[MetadataToken])
}

func TestClient_CreatePaymentErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "ошибка авторизации", status: http.StatusUnauthorized, body: `{"type":"error"}`, wantErr: "unexpected status"},
		{name: "нет ссылки на оплату", status: http.StatusOK, body: `{"id":"pay-1","status":"pending"}`, wantErr: ErrNoConfirmationURL.Error()},
		{name: "битый ответ", status: http.StatusOK, body: `{`, wantErr: "paymentprovider.CreatePayment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checkout, err := newTestClient(srv.URL).CreatePayment(context.Background(), models.PaymentLink{
				Token: "t", Amount: decimal.NewFromInt(1),
			})
			require.Error(t, err)
			assert.Nil(t, checkout)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_PaymentSucceeded(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{name: "оплачен", status: http.StatusOK, body: `{"id":"pay-1","status":"succeeded","paid":true}`, want: true},
		{name: "ожидает оплаты", status: http.StatusOK, body: `{"id":"pay-1","status":"pending"}`, want: false},
		{name: "отменён", status: http.StatusOK, body: `{"id":"pay-1","status":"canceled"}`, want: false},
		{name: "не найден", status: http.StatusNotFound, body: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/payments/pay-1", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := newTestClient(srv.URL).PaymentSucceeded(context.Background(), "pay-1")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
