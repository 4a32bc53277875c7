// Package weeklystats отдаёт статистику текущей недели, пересчитывая её.
package weeklystats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/odds-notifier/internal/http/response"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// Service расчёт недельной статистики.
type Service interface {
	Weekly(ctx context.Context) (*models.WeeklyStats, error)
}

// Handler обрабатывает запрос статистики.
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
// @Summary Недельная статистика
// @Description Считает и сохраняет статистику текущей календарной недели
// @Tags Admin
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /admin/stats/weekly [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.weeklystats"

	stats, err := h.service.Weekly(r.Context())
	if err != nil {
		h.log.Error("failed to compute weekly stats",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err),
		)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(stats))
}
