/**
 * @description
 * HTTP router. Wires the chi middleware stack, CORS, and all API routes.
 * Everything under /api except session issuance sits behind the session
 * middleware.
 */
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps carries the handlers and middleware the router composes.
type RouterDeps struct {
	Auth           *AuthHandler
	Brokers        *BrokerHandler
	Portfolio      *PortfolioHandler
	Sessions       *SessionAuth
	AllowedOrigins string
}

// NewRouter builds the service's HTTP handler.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := []string{"http://localhost:3000"}
	if deps.AllowedOrigins != "" {
		origins = strings.Split(deps.AllowedOrigins, ",")
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/session", deps.Auth.CreateSession)

		r.Group(func(r chi.Router) {
			r.Use(deps.Sessions.Middleware)

			r.Route("/brokers", func(r chi.Router) {
				r.Get("/", deps.Brokers.List)
				r.Post("/logout-all", deps.Brokers.LogoutAll)
				r.Route("/{brokerID}", func(r chi.Router) {
					r.Post("/credentials", deps.Brokers.SaveCredentials)
					r.Delete("/credentials", deps.Brokers.DeleteCredentials)
					r.Get("/login-url", deps.Brokers.LoginURL)
					r.Post("/session", deps.Brokers.CompleteSession)
					r.Post("/authenticate", deps.Brokers.Authenticate)
					r.Post("/logout", deps.Brokers.Logout)
				})
			})

			r.Route("/portfolio", func(r chi.Router) {
				r.Get("/", deps.Portfolio.Portfolio)
				r.Get("/holdings", deps.Portfolio.Holdings)
				r.Get("/snapshot", deps.Portfolio.Snapshot)
				r.Route("/enrichment", func(r chi.Router) {
					r.Get("/quotes", deps.Portfolio.Quotes)
					r.Get("/classification", deps.Portfolio.Classifications)
					r.Get("/fund-day-change", deps.Portfolio.FundDayChanges)
				})
			})
		})
	})

	return r
}
