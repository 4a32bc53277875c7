// Package search реализует HTTP-обработчик поиска матчей по запросу пользователя.
package search

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
	searchsvc "github.com/magabrotheeeer/odds-notifier/internal/services/search"
)

// Service выполняет поиск.
type Service interface {
	Search(ctx context.Context, externalID int64) (*searchsvc.Result, error)
}

// Handler обрабатывает запросы поиска.
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
// @Summary Поиск матчей
// @Description Матчи из текущего снимка с ценами в заданном диапазоне. Без подписки списывает пробный поиск, если что-то найдено
// @Tags Matches
// @Produce  json
// @Param external_id path int true "Идентификатор чата"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный external_id"
// @Failure 403 {object} response.ErrorResponse "Нет подписки и пробных поисков"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /users/{external_id}/search [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.matches.search"
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

	res, err := h.service.Search(r.Context(), externalID)
	switch {
	case errors.Is(err, searchsvc.ErrAccessDenied):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("no active subscription and no trial searches left"))
		return
	case errors.Is(err, models.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("search failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	if res.Matches == nil {
		res.Matches = []models.Match{}
	}
	render.JSON(w, r, response.StatusOKWithData(res))
}
