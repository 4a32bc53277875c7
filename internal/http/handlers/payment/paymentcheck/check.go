// Package paymentcheck обрабатывает ручную проверку оплаты по токену ссылки.
package paymentcheck

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/odds-notifier/internal/http/response"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// Status данные ответа. Applied true, если оплата применена к подписке этим запросом.
type Status struct {
	Token        string               `json:"token"`
	Paid         bool                 `json:"paid"`
	Applied      bool                 `json:"applied"`
	IsRenewal    bool                 `json:"is_renewal,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Links чтение платёжных ссылок.
type Links interface {
	Link(ctx context.Context, token string) (*models.PaymentLink, error)
}

// Checker проверка и применение оплаты.
type Checker interface {
	CheckPayment(ctx context.Context, token string) (*models.SettlementResult, error)
}

// Handler обрабатывает запросы проверки оплаты.
type Handler struct {
	log     *slog.Logger
	links   Links
	checker Checker
}

// New создаёт Handler.
func New(log *slog.Logger, links Links, checker Checker) *Handler {
	return &Handler{
		log:     log,
		links:   links,
		checker: checker,
	}
}

// ServeHTTP godoc
// @Summary Проверить оплату
// @Description Запрашивает статус платежа у провайдера и применяет оплату к подписке
// @Tags Payments
// @Produce  json
// @Param token path string true "Токен ссылки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Ссылка не найдена"
// @Failure 502 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /payments/{token}/check [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.check"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token := chi.URLParam(r, "token")
	link, err := h.links.Link(r.Context(), token)
	if errors.Is(err, models.ErrPaymentLinkNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("payment link not found"))
		return
	}
	if err != nil {
		log.Error("failed to get payment link", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	status := Status{Token: token, Paid: link.Settled}
	if !link.Settled {
		res, err := h.checker.CheckPayment(r.Context(), token)
		if err != nil {
			log.Error("failed to check payment", sl.Err(err))
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.Error("payment provider error"))
			return
		}
		if res != nil {
			status.Paid = true
			status.Applied = true
			status.IsRenewal = res.IsRenewal
			status.Subscription = &res.Subscription
		}
	}

	log.Info("payment checked", slog.String("token", token), slog.Bool("paid", status.Paid))
	render.JSON(w, r, response.StatusOKWithData(status))
}
