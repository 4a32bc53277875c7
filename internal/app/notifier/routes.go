package notifier

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	// Регистрация описания API для /docs.
	_ "github.com/magabrotheeeer/odds-notifier/docs"
	"github.com/magabrotheeeer/odds-notifier/internal/http/middlewarectx"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/jwt"
)

// Handlers обработчики маршрутов.
type Handlers struct {
	Register     http.Handler
	Access       http.Handler
	Search       http.Handler
	PaymentLink  http.Handler
	PaymentCheck http.Handler
	Webhook      http.Handler
	Grant        http.Handler
	Revoke       http.Handler
	WeeklyStats  http.Handler
	Health       http.Handler
	Metrics      http.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, parser middlewarectx.TokenParser, searchLimiter *rate.Limiter, h Handlers) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(parser, logger))
			r.Use(middlewarectx.RequireRole(logger, jwt.RoleBot, jwt.RoleAdmin))

			r.Post("/users", h.Register.ServeHTTP)
			r.Get("/users/{external_id}/access", h.Access.ServeHTTP)
			r.With(middlewarectx.RateLimitMiddleware(logger, searchLimiter)).
				Post("/users/{external_id}/search", h.Search.ServeHTTP)
			r.Post("/payments", h.PaymentLink.ServeHTTP)
			r.Post("/payments/{token}/check", h.PaymentCheck.ServeHTTP)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, jwt.RoleAdmin))
				r.Post("/subscriptions", h.Grant.ServeHTTP)
				r.Delete("/subscriptions/{username}", h.Revoke.ServeHTTP)
				r.Get("/stats/weekly", h.WeeklyStats.ServeHTTP)
			})
		})

		// Webhook endpoint (без аутентификации, подпись проверяет обработчик)
		r.Post("/payments/webhook", h.Webhook.ServeHTTP)
	})

	r.Get("/health", h.Health.ServeHTTP)
	r.Handle("/metrics", h.Metrics)
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
