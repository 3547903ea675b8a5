package handlers

import (
	"context"
	"net/http"
	"time"

	"blertbank/internal/config"
	"blertbank/internal/logging"
	"blertbank/internal/middleware"
	"blertbank/internal/validator"
	"blertbank/internal/websocket"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type Handler struct {
	cfg          config.Config
	accounts     AccountService
	transactions TransactionService
	audit        AuditService
	health       Pinger
	hub          *websocket.Hub
	validate     *validator.Validator
	logger       zerolog.Logger
}

func New(cfg config.Config, accounts AccountService, transactions TransactionService, audit AuditService, health Pinger, hub *websocket.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:          cfg,
		accounts:     accounts,
		transactions: transactions,
		audit:        audit,
		health:       health,
		hub:          hub,
		validate:     validator.New(),
		logger:       logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(logging.RequestLogger(h.logger))
	if h.cfg.SentryDSN != "" {
		router.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	router.Use(middleware.Recover(h.logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.Origins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", middleware.ServiceTokenHeader, middleware.ServiceNameHeader},
		MaxAge:         300,
	}))

	router.Get("/health", h.Health)

	router.Group(func(r chi.Router) {
		r.Use(middleware.ServiceAuth(h.cfg.ServiceToken))
		r.Post("/accounts", h.CreateAccount)
		r.Get("/accounts/user/{userId}", h.GetUserAccount)
		r.Get("/accounts/{accountId}", h.GetAccount)
		r.Get("/accounts/{accountId}/balance", h.GetBalance)
		r.Post("/transactions", h.CreateTransaction)
		r.Get("/transactions/{txnId}", h.GetTransaction)
		r.Post("/transactions/{txnId}/reverse", h.ReverseTransaction)
		r.Get("/reconcile", h.Reconcile)
		r.Get("/ws/accounts/{accountId}", h.StreamBalances)
	})
	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.PingContext(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
