// Package paymentwebhook принимает уведомления платёжного провайдера.
//
// Подпись тела проверяется по HMAC-SHA256 из заголовка X-Api-Signature.
// Успешные оплаты ставятся в очередь на погашение ссылки, остальные
// события подтверждаются без обработки.
package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/odds-notifier/internal/http/response"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/paymentprovider"
)

// SignatureHeader заголовок с подписью тела.
const SignatureHeader = "X-Api-Signature"

const maxBodySize = 1 << 20

// Queue очередь событий оплаты.
type Queue interface {
	Enqueue(ctx context.Context, event models.SettlementEvent) error
}

// Handler обрабатывает вебхуки провайдера.
type Handler struct {
	log           *slog.Logger
	queue         Queue
	webhookSecret string // Секрет для проверки подписи
}

// New создаёт Handler.
func New(log *slog.Logger, queue Queue, secret string) *Handler {
	return &Handler{
		log:           log,
		queue:         queue,
		webhookSecret: secret,
	}
}

// Sign возвращает подпись тела в формате заголовка X-Api-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	if h.webhookSecret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(h.webhookSecret, body)), []byte(signature))
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Принимает уведомление об оплате и ставит его в очередь на обработку
// @Tags Payments
// @Accept  json
// @Param X-Api-Signature header string true "HMAC-SHA256 тела в base64"
// @Success 200
// @Failure 400 {object} response.ErrorResponse "Некорректное тело"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 500 {object} response.ErrorResponse "Не удалось поставить событие в очередь"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	defer r.Body.Close()

	if !h.verifySignature(body, r.Header.Get(SignatureHeader)) {
		log.Warn("invalid or missing webhook signature")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var notification paymentprovider.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if strings.ToLower(notification.Event) != paymentprovider.EventPaymentSucceeded {
		log.Info("ignored webhook event", slog.String("event", notification.Event))
		w.WriteHeader(http.StatusOK)
		return
	}

	token := notification.Object.Metadata[paymentprovider.MetadataToken]
	if token == "" {
		log.Warn("webhook without payment link token", slog.String("payment_id", notification.Object.ID))
		w.WriteHeader(http.StatusOK)
		return
	}

	event := models.SettlementEvent{Token: token, ProviderPaymentID: notification.Object.ID}
	if err := h.queue.Enqueue(r.Context(), event); err != nil {
		log.Error("failed to enqueue settlement", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("settlement enqueued", slog.String("token", token), slog.String("payment_id", notification.Object.ID))
	w.WriteHeader(http.StatusOK)
}
