// Package access реализует HTTP-обработчик сводки доступа пользователя:
// активная подписка, остаток пробных поисков и итоговый признак доступа.
package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/odds-notifier/internal/http/response"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// Summary данные ответа.
type Summary struct {
	ExternalID   int64                `json:"external_id"`
	HasAccess    bool                 `json:"has_access"`
	TrialLeft    int                  `json:"trial_left"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Service часть сервиса подписок, нужная обработчику.
type Service interface {
	UserByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	GetActive(ctx context.Context, userID int64) (*models.Subscription, error)
	HasAccess(ctx context.Context, user *models.User) (bool, error)
}

// Handler обрабатывает запросы сводки доступа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Доступ пользователя
// @Description Возвращает активную подписку и остаток пробных поисков
// @Tags Users
// @Produce  json
// @Param external_id path int true "Идентификатор чата"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный external_id"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /users/{external_id}/access [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.access"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	externalID, err := strconv.ParseInt(chi.URLParam(r, "external_id"), 10, 64)
	if err != nil {
		log.Warn("failed to decode external_id from url", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid external_id"))
		return
	}

	user, err := h.service.UserByExternalID(r.Context(), externalID)
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

	allowed, err := h.service.HasAccess(r.Context(), user)
	if err != nil {
		log.Error("failed to check access", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	active, err := h.service.GetActive(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to get active subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(Summary{
		ExternalID:   externalID,
		HasAccess:    allowed,
		TrialLeft:    user.TrialLeft,
		Subscription: active,
	}))
}
