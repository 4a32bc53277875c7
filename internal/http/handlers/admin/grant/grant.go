// Package grant реализует админскую выдачу тарифа по имени пользователя.
package grant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/odds-notifier/internal/http/response"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/notification"
)

// Request запрос на выдачу. Username можно передавать с ведущим @.
type Request struct {
	Username string `json:"username" validate:"required,max=64"`
	Plan     string `json:"plan" validate:"required"`
}

// Result данные ответа.
type Result struct {
	User         *models.User         `json:"user"`
	Subscription *models.Subscription `json:"subscription"`
	IsRenewal    bool                 `json:"is_renewal"`
}

// Service выдача тарифа.
type Service interface {
	GrantByUsername(ctx context.Context, username string, kind models.PlanKind) (*models.Subscription, *models.User, bool, error)
}

// Notifier отправка текстового уведомления пользователю.
type Notifier interface {
	NotifyText(ctx context.Context, recipient int64, text string) error
}

// Handler обрабатывает выдачу тарифа.
type Handler struct {
	log      *slog.Logger
	service  Service
	notifier Notifier
	plans    models.Plans
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service, notifier Notifier, plans models.Plans) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		notifier: notifier,
		plans:    plans,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Выдать подписку
// @Description Создаёт или продлевает подписку пользователя по имени и уведомляет его
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param request body Request true "Пользователь и тариф"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный тариф"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /admin/subscriptions [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grant"
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
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(verrs))
		return
	}

	kind := models.PlanKind(req.Plan)
	sub, user, renewal, err := h.service.GrantByUsername(r.Context(), req.Username, kind)
	switch {
	case errors.Is(err, models.ErrInvalidPlan):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("unknown plan"))
		return
	case errors.Is(err, models.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to grant subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	text := notification.GrantText(h.plans.Title(kind), sub.EndDate, renewal)
	if err := h.notifier.NotifyText(r.Context(), user.ExternalID, text); err != nil {
		log.Warn("failed to notify user about grant", slog.Int64("external_id", user.ExternalID), sl.Err(err))
	}

	log.Info("subscription granted",
		slog.String("username", user.Username),
		slog.String("plan", req.Plan),
		slog.Bool("renewal", renewal),
	)
	render.JSON(w, r, response.StatusOKWithData(Result{User: user, Subscription: sub, IsRenewal: renewal}))
}
