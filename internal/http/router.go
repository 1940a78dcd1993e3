package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Lumixions/flutter-marketplace/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Products       *ProductHandler
	Seller         *SellerHandler
	Orders         *OrdersHandler
	Webhooks       *WebhookHandler
	Auth           Authenticator
	Health         Pinger
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	RequestTimeout time.Duration
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(log))
	r.Use(RequestMetrics(cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", healthHandler(cfg.Health))
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", cfg.Products.List)
		r.Get("/products/{product_id}", cfg.Products.Get)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.Auth))

			r.Route("/seller", func(r chi.Router) {
				r.Get("/profile", cfg.Seller.GetProfile)
				r.Post("/profile", cfg.Seller.UpsertProfile)
				r.Get("/products", cfg.Seller.ListProducts)
				r.Post("/products", cfg.Seller.CreateProduct)
				r.Patch("/products/{product_id}", cfg.Seller.UpdateProduct)
				r.Post("/products/{product_id}/images", cfg.Seller.AttachImages)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", cfg.Orders.PlaceOrder)
				r.Get("/", cfg.Orders.ListOrders)
				r.Get("/{order_id}", cfg.Orders.GetOrder)
				r.Post("/{order_id}/checkout", cfg.Orders.Checkout)
			})
		})
	})

	r.Post("/webhooks/stripe", cfg.Webhooks.Stripe)
	r.Get("/stripe/success", StripeSuccess)
	r.Get("/stripe/cancel", StripeCancel)

	return otelhttp.NewHandler(r, "marketplace-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				slog.WarnContext(r.Context(), "health check failed", "error", err)
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
