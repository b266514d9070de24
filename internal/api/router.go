package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handlers *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// long-lived; kept outside the request timeout
	r.Get("/courses/{courseID}/instances/stream", handlers.StreamInstances)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))

		// Catalog
		r.Get("/classes", handlers.ListClasses)
		r.Post("/courses", handlers.CreateCourse)
		r.Post("/courses/{courseID}/instances", handlers.AddInstance)

		// Cart
		r.Get("/cart", handlers.GetCart)
		r.Delete("/cart", handlers.ClearCart)
		r.Post("/cart/items", handlers.AddToCart)
		r.Delete("/cart/items/{bookingID}", handlers.RemoveFromCart)
	})

	return r
}
