// Package revoke реализует админский отзыв подписки по имени пользователя.
package revoke

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
	"github.com/magabrotheeeer/odds-notifier/internal/notification"
)

// Result данные ответа. Revoked false, если активной подписки не было.
type Result struct {
	User    *models.User `json:"user"`
	Revoked bool         `json:"revoked"`
}

// Service отзыв подписки.
type Service interface {
	RevokeByUsername(ctx context.Context, username string) (*models.User, bool, error)
}

// Notifier отправка текстового уведомления пользователю.
type Notifier interface {
	NotifyText(ctx context.Context, recipient int64, text string) error
}

// Handler обрабатывает отзыв подписки.
type Handler struct {
	log      *slog.Logger
	service  Service
	notifier Notifier
}

// New создаёт Handler.
func New(log *slog.Logger, service Service, notifier Notifier) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		notifier: notifier,
	}
}

// ServeHTTP godoc
// @Summary Отозвать подписку
// @Description Делает активную подписку пользователя истёкшей и уведомляет его
// @Tags Admin
// @Produce  json
// @Param username path string true "Имя пользователя"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /admin/subscriptions/{username} [delete]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.revoke"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	username := chi.URLParam(r, "username")
	user, revoked, err := h.service.RevokeByUsername(r.Context(), username)
	if errors.Is(err, models.ErrUserNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	}
	if err != nil {
		log.Error("failed to revoke subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	if revoked {
		if err := h.notifier.NotifyText(r.Context(), user.ExternalID, notification.RevokeText()); err != nil {
			log.Warn("failed to notify user about revoke", slog.Int64("external_id", user.ExternalID), sl.Err(err))
		}
	}

	log.Info("revoke processed", slog.String("username", username), slog.Bool("revoked", revoked))
	render.JSON(w, r, response.StatusOKWithData(Result{User: user, Revoked: revoked}))
}
