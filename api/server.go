/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/products/*     Catalog
  /api/purchase       Buy flow
  /api/deposits       Top-up flow
  /api/promo/*        Promo preview
  /api/payments/*     QR payment status and manual confirm
  /api/users/*        Accounts and history
  /api/leaderboard    Top spenders
  /api/orders/*       Credential delivery

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/best-sellers", h.ListBestSellers)
			r.Get("/{id}", h.GetProduct)
		})

		// Transaction routes
		r.Post("/purchase", h.Purchase)
		r.Post("/deposits", h.CreateDeposit)
		r.Post("/promo/apply", h.ApplyPromo)

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Get("/{id}", h.GetPayment)
			r.Post("/{id}/confirm", h.ConfirmPayment)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/orders", h.GetUserOrders)
			r.Get("/{id}/deposits", h.GetUserDeposits)
		})

		// Reporting routes
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/orders/{id}/credential", h.GetOrderCredential)
	})

	return r
}
