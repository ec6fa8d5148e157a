package http

import (
	"net/http"
	"time"

	"github.com/fjod/commerce-core/internal/auth"
	"github.com/fjod/commerce-core/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

type Deps struct {
	Carts    CartStore
	Hydrator CartHydrator
	Checkout SessionBuilder
	Orders   OrderService
	Gate     auth.Gate
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg RouterConfig, d Deps) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20 // 1MB
	}

	cartHandler := NewCartHandler(d.Carts, d.Hydrator, d.Checkout, cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(d.Orders, cfg.RequestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(Metrics(d.Metrics))
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(d.Gate))

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", cartHandler.CreateCart)
			r.Route("/{cartID}", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.DeleteCart)
				r.Post("/items", cartHandler.AddItems)
				r.Put("/items/{productID}", cartHandler.UpdateQuantity)
				r.Delete("/items/{productID}", cartHandler.RemoveItem)
				r.Post("/checkout", cartHandler.Checkout)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", ordersHandler.GetOrder)
				r.Patch("/", ordersHandler.UpdateOrder)
				r.Post("/items/{itemID}/transition", ordersHandler.Transition)
			})
		})
	})

	return otelhttp.NewHandler(r, "commerce-api")
}
