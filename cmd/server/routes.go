package main

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayush/receipt-tracker/backend/internal/auth"
	"github.com/ayush/receipt-tracker/backend/internal/middleware"
	"github.com/ayush/receipt-tracker/backend/internal/receipt"
	"github.com/ayush/receipt-tracker/backend/internal/warranty"
)

// server holds everything the router needs. limiter is nil when Redis is
// not configured, which disables rate limiting.
type server struct {
	logger         *slog.Logger
	allowedOrigins []string
	trustedProxies []netip.Prefix
	rateLimit      int
	limiter        middleware.Counter

	authSvc    *auth.Service
	auth       *auth.Handler
	receipts   *receipt.Handler
	warranties *warranty.Handler
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(s.trustedProxies))
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Metrics())
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := middleware.RequireAuth(s.authSvc)

	// Auth routes (public)
	r.Route("/api/auth", func(r chi.Router) {
		r.With(s.limit("register")).Post("/register", s.auth.Register)
		r.With(s.limit("login")).Post("/login", s.auth.Login)
		r.Post("/logout", s.auth.Logout)
		r.Get("/user", s.auth.User)
	})

	// Receipt routes (protected)
	r.Route("/api/receipts", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", s.receipts.List)
		r.Post("/", s.receipts.Create)
		r.Get("/stats", s.receipts.Stats)
		r.Get("/scan", s.receipts.History)
		r.With(s.limit("scan")).Post("/scan", s.receipts.Scan)
		r.Get("/{id}", s.receipts.Get)
		r.Delete("/{id}", s.receipts.Delete)
		r.Get("/{id}/image", s.receipts.Image)
		r.Get("/{id}/extraction", s.receipts.Extraction)
	})

	// Warranty routes (feature-flagged, then protected)
	r.Mount("/api/warranties", s.warranties.WarrantyRoutes(requireAuth))
	r.Mount("/api/alerts", s.warranties.AlertRoutes(requireAuth))

	return r
}

// limit rate-limits a route per client IP, or does nothing without Redis.
func (s *server) limit(scope string) func(http.Handler) http.Handler {
	if s.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(s.limiter, scope, s.rateLimit, s.logger)
}
