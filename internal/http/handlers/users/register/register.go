// Package register реализует HTTP-обработчик регистрации пользователя чат-транспорта.
//
// Повторная регистрация с тем же external_id возвращает существующего
// пользователя без изменений.
package register

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
)

// Request тело запроса регистрации.
type Request struct {
	ExternalID int64  `json:"external_id" validate:"required,gt=0"`
	Username   string `json:"username,omitempty" validate:"max=64"`
	FirstName  string `json:"first_name,omitempty" validate:"max=128"`
	LastName   string `json:"last_name,omitempty" validate:"max=128"`
}

// Result данные ответа.
type Result struct {
	User    *models.User `json:"user"`
	Created bool         `json:"created"`
}

// Service регистрирует пользователя.
type Service interface {
	Register(ctx context.Context, u models.User) (*models.User, bool, error)
}

// Handler обрабатывает запросы регистрации.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Регистрация пользователя
// @Description Возвращает пользователя по external_id, создавая его при первом обращении
// @Tags Users
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные пользователя"
// @Success 200 {object} response.Response "Пользователь уже зарегистрирован"
// @Success 201 {object} response.Response "Пользователь создан"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /users [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.register"
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

	user, created, err := h.service.Register(r.Context(), models.User{
		ExternalID: req.ExternalID,
		Username:   req.Username,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	})
	if err != nil {
		log.Error("failed to register user", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not register user"))
		return
	}

	if created {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, response.StatusOKWithData(Result{User: user, Created: created}))
}
