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

	/api/distributions    Manual distribution trigger
	/api/batches/*        Batch ingestion and job reports
	/api/users/*          Referral tree and income history
	/api/deposits/*       Deposit workflow
	/api/withdrawals/*    Withdrawal workflow
	/api/seed/*           Demo data (dev only)

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
		// Distribution routes
		r.Post("/distributions", h.Distribute)

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", h.RunBatch)
			r.Get("/", h.ListBatches)
			r.Get("/{id}", h.GetBatch)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{key}", h.GetUser)
			r.Get("/{key}/incomes", h.GetIncomes)
			r.Get("/{key}/referrals", h.GetReferrals)
			r.Get("/{key}/ancestors", h.GetAncestors)
			r.Post("/{key}/toggle-active", h.ToggleActive)
		})

		// Deposit routes
		r.Route("/deposits", func(r chi.Router) {
			r.Get("/", h.ListDeposits)
			r.Post("/", h.CreateDeposit)
			r.Post("/{id}/screenshot", h.AttachDepositProof)
			r.Post("/{id}/process", h.ProcessDeposit)
		})

		// Withdrawal routes
		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", h.ListWithdrawals)
			r.Post("/", h.CreateWithdrawal)
			r.Post("/{id}/process", h.ProcessWithdrawal)
		})

		// Demo seed routes
		r.Post("/seed/demo", h.SeedDemo)
	})

	return r
}
