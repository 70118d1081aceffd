package callback

import (
	"net/http"

	"paygate/internal/auth"
	"paygate/internal/logger"
	"paygate/internal/metrics"
	"paygate/internal/middleware"
	"paygate/internal/utils"

	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	JWTSecret       string
	CallbackLimiter *middleware.Limiter
	Metrics         *metrics.Set
}

func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	router := chi.NewRouter()
	router.Use(logger.RequestIDMiddleware, logger.LoggingMiddleware)

	router.Get("/health", h.Health)

	router.With(middleware.ServiceAuth(cfg.JWTSecret, auth.ScopeCheckout)).
		Post("/payments", h.Checkout)

	router.With(middleware.ServiceAuth(cfg.JWTSecret, auth.ScopeAdmin)).
		Post("/admin/payments/{uuid}/verify", h.Reverify)

	if cfg.Metrics != nil {
		router.With(middleware.ServiceAuth(cfg.JWTSecret, auth.ScopeAdmin)).
			Get("/admin/metrics", func(w http.ResponseWriter, r *http.Request) {
				utils.WriteJSON(w, http.StatusOK, cfg.Metrics.Snapshot())
			})
	}

	// Providers send the user back here, so no service token.
	router.Group(func(r chi.Router) {
		if cfg.CallbackLimiter != nil {
			r.Use(cfg.CallbackLimiter.Middleware)
		}
		r.Get("/callback/{driver}", h.Callback)
		r.Post("/callback/{driver}", h.Callback)
	})

	return router
}
