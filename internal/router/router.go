package router

import (
	"net/http"

	"sales-realtime-api/internal/handler"
	"sales-realtime-api/internal/metrics"
	"sales-realtime-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	StockHandler     *handler.StockHandler
	ProductHandler   *handler.ProductHandler
	CartHandler      *handler.CartHandler
	OrderHandler     *handler.OrderHandler
	AdminHandler     *handler.AdminHandler
	DashboardHandler *handler.DashboardHandler

	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	AdminAuth      func(http.Handler) http.Handler
	WriteRateLimit func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger, cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	writes := cfg.WriteRateLimit
	if writes == nil {
		writes = passthrough
	}

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if h := cfg.StockHandler; h != nil {
			r.Route("/stock", func(r chi.Router) {
				r.Get("/", h.Batch)
				r.Route("/flash/{saleId}/{productId}", func(r chi.Router) {
					r.Get("/", h.GetFlash)
					r.With(writes).Post("/deduct", h.DeductFlash)
				})
				r.Route("/{productId}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.With(writes).Post("/deduct", h.Deduct)
					r.With(writes).Post("/lock", h.Lock)
				})
			})
		}

		if h := cfg.ProductHandler; h != nil {
			r.Get("/products", h.List)
			r.Get("/products/{id}", h.Get)
		}

		if h := cfg.CartHandler; h != nil {
			r.Route("/cart", func(r chi.Router) {
				r.Use(middleware.RequireUser)
				r.Get("/", h.Get)
				r.Get("/count", h.Count)
				if cfg.OrderHandler != nil {
					r.Get("/orders", cfg.OrderHandler.Mine)
				}
				r.Group(func(r chi.Router) {
					r.Use(writes)
					r.Delete("/", h.Clear)
					r.Post("/items", h.Add)
					r.Put("/items/{productId}", h.Update)
					r.Put("/items/{productId}/selected", h.Select)
					r.Delete("/items/{productId}", h.Remove)
					r.Post("/checkout", h.Checkout)
				})
			})
		}

		if h := cfg.OrderHandler; h != nil {
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.List)
				r.With(writes).Post("/", h.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Get("/status", h.Status)
					r.Group(func(r chi.Router) {
						r.Use(writes)
						r.Post("/pay", h.Pay)
						r.Post("/deliver", h.Deliver)
						r.Post("/complete", h.Complete)
						r.Post("/cancel", h.Cancel)
						r.Post("/logistics", h.AddTrace)
					})
				})
			})
		}

		if h := cfg.DashboardHandler; h != nil {
			r.Get("/dashboard/realtime", h.Realtime)
			r.Get("/ranking/{board}", h.Ranking)
		}

		if h := cfg.AdminHandler; h != nil {
			r.Route("/admin", func(r chi.Router) {
				if cfg.AdminAuth != nil {
					r.Use(cfg.AdminAuth)
				}
				r.Get("/stats", h.GetStats)
				r.Get("/orders/stats", h.OrderStats)
				r.Put("/orders/{id}/status", h.UpdateOrderStatus)
				r.Delete("/orders/{id}", h.DeleteOrder)
				r.Post("/products", h.SaveProduct)
				r.Put("/products/{id}/status", h.UpdateProductStatus)
				r.Delete("/products/{id}", h.DeleteProduct)
				r.Post("/sales/flush", h.FlushSales)
				if sh := cfg.StockHandler; sh != nil {
					r.Post("/stock/{productId}", sh.Set)
					r.Post("/stock/{productId}/increase", sh.Increase)
					r.Post("/stock/flash/{saleId}/{productId}", sh.SetFlash)
				}
			})
		}
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }
