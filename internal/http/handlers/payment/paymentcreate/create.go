// Package paymentcreate обрабатывает выпуск платёжной ссылки на тариф.
package paymentcreate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/odds-notifier/internal/http/response"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// Request запрос на выпуск ссылки.
type Request struct {
	ExternalID int64  `json:"external_id" validate:"required,gt=0"`
	Plan       string `json:"plan" validate:"required"`
}

// Link данные ответа.
type Link struct {
	Token      string          `json:"token"`
	Plan       models.PlanKind `json:"plan"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentURL string          `json:"payment_url"`
}

// Users поиск пользователя по идентификатору чата.
type Users interface {
	UserByExternalID(ctx context.Context, externalID int64) (*models.User, error)
}

// Registry выпуск платёжных ссылок.
type Registry interface {
	Issue(ctx context.Context, userID int64, kind models.PlanKind) (*models.PaymentLink, error)
}

// Handler обрабатывает запросы на выпуск ссылки.
type Handler struct {
	log      *slog.Logger
	users    Users
	registry Registry
	validate *validator.Validate // Валидатор структуры входящих данных
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, users Users, registry Registry) *Handler {
	return &Handler{
		log:      log,
		users:    users,
		registry: registry,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать платёжную ссылку
// @Description Создаёт неоплаченную ссылку на тариф и платёж у провайдера
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Пользователь и тариф"
// @Success 201 {object} response.Response "Ссылка создана"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный тариф"
// @Failure 502 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /payments [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid request body"))
			return
		}
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(verrs))
		return
	}

	user, err := h.users.UserByExternalID(r.Context(), req.ExternalID)
	if errors.Is(err, models.ErrUserNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	}
	if err != nil {
		log.Error("failed to get user", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	link, err := h.registry.Issue(r.Context(), user.ID, models.PlanKind(req.Plan))
	if errors.Is(err, models.ErrInvalidPlan) {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("unknown plan"))
		return
	}
	if err != nil {
		log.Error("failed to issue payment link", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("payment provider error"))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(Link{
		Token:      link.Token,
		Plan:       link.Plan,
		Amount:     link.Amount,
		PaymentURL: link.PaymentURL,
	}))
}
