// Package api exposes the storefront HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"tienda-be/internal/cart"
	"tienda-be/internal/checkout"
	"tienda-be/internal/logger"
	"tienda-be/internal/middleware"
	"tienda-be/internal/order"
	"tienda-be/internal/payment/webhook"
	"tienda-be/internal/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type Handler struct {
	carts    cart.Service
	checkout checkout.Service
	orders   order.Service
	webhooks *webhook.Handler
	checks   map[string]Pinger
}

func NewHandler(carts cart.Service, co checkout.Service, orders order.Service, webhooks *webhook.Handler, checks map[string]Pinger) *Handler {
	return &Handler{
		carts:    carts,
		checkout: co,
		orders:   orders,
		webhooks: webhooks,
		checks:   checks,
	}
}

type RouterConfig struct {
	JWTSecret      []byte
	CORSOrigin     string
	RequestTimeout time.Duration
	Limiter        *middleware.Limiter
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(logger.RequestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.CORS(cfg.CORSOrigin))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.Limiter != nil {
			r.Use(cfg.Limiter.Middleware)
		}
		if cfg.RequestTimeout > 0 {
			r.Use(chimw.Timeout(cfg.RequestTimeout))
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/lines", h.AddCartLine)
			r.Patch("/lines", h.UpdateCartLine)
			r.Delete("/lines", h.RemoveCartLine)
			r.With(middleware.RequireUser).Post("/merge", h.MergeCart)
		})

		r.With(middleware.RequireUser).Get("/orders/{id}", h.GetOrder)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/webhook", h.webhooks.PaymentWebhookHandler)
			r.Post("/webhook/{provider}", h.webhooks.PaymentWebhookHandler)
			r.Get("/payment-methods", h.PaymentMethods)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser)
				r.Post("/card/token", h.TokenizeCard)
				r.Post("/card/process", h.ProcessCard)
				r.Post("/create-preference", h.CreatePreference)
				r.Get("/{id}", h.GetPayment)
			})

			r.With(middleware.RequireRole(utils.RoleAdmin)).Post("/{id}/refund", h.Refund)
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "OK"}
	for name, p := range h.checks {
		if err := p.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "DEGRADED"
			body[name] = err.Error()
			continue
		}
		body[name] = "up"
	}
	utils.WriteJSON(w, status, body)
}
