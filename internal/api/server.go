// Package api exposes the claims-intake HTTP surface: claim CRUD and
// transitions, document upload and OCR reprocessing, the inbound email
// webhook, and health.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/voyagecover/claims-intake/internal/claims"
	"github.com/voyagecover/claims-intake/internal/docs"
	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/intake"
	"github.com/voyagecover/claims-intake/internal/ocr"
)

// StatusNotifier sends the customer email for analyst-driven transitions.
type StatusNotifier interface {
	StatusChanged(ctx context.Context, claim *domain.Claim, reason string) bool
}

// Handlers carries the service dependencies for all routes.
type Handlers struct {
	claims    *claims.Service
	documents *docs.Service
	ocr       *ocr.Worker
	pipeline  *intake.Pipeline
	notifier  StatusNotifier
	db        *sql.DB

	webhookSecret string
}

// NewHandlers wires the handler set. pipeline, ocr, and notifier may be nil
// when the corresponding route group is disabled.
func NewHandlers(claimSvc *claims.Service, documents *docs.Service, ocrWorker *ocr.Worker,
	pipeline *intake.Pipeline, notifier StatusNotifier, db *sql.DB, webhookSecret string) *Handlers {
	return &Handlers{
		claims:        claimSvc,
		documents:     documents,
		ocr:           ocrWorker,
		pipeline:      pipeline,
		notifier:      notifier,
		db:            db,
		webhookSecret: webhookSecret,
	}
}

// Server is the HTTP server for the intake API.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer builds the router around the handlers.
func NewServer(h *Handlers) *Server {
	return &Server{handler: SetupRoutes(h)}
}

// SetupRoutes configures the router and middleware stack.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Post("/email-webhook", h.EmailWebhook)

	r.Route("/claims", func(r chi.Router) {
		r.Post("/", h.CreateClaim)
		r.Get("/", h.ListClaims)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetClaim)
			r.Put("/status", h.UpdateClaimStatus)
			r.Post("/documents", h.UploadDocument)
			r.Post("/documents/{docID}/reprocess", h.ReprocessDocument)
		})
	})

	return r
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
