// Package httpapi exposes question answering, document management and the
// citation locators over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paper-citations-rag/internal/rag"
)

// DefaultMaxUploadBytes caps an uploaded PDF at 50 MiB
const DefaultMaxUploadBytes = 50 << 20

// Handler serves the API routes
type Handler struct {
	Service        *rag.Service
	UploadDir      string
	EmbeddingDim   int
	MaxUploadBytes int64
}

// NewRouter builds the route tree. allowedOrigins feeds the CORS policy.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/setup", h.Setup)
		api.Post("/query", h.Query)
		api.Post("/upload", h.Upload)
		api.Post("/locate/span", h.LocateSpan)
		api.Get("/conversations", h.ListConversations)
		api.Get("/pdf/{id}", h.ServePDF)

		api.Route("/documents", func(dr chi.Router) {
			dr.Get("/", h.ListDocuments)

			dr.Route("/{id}", func(item chi.Router) {
				item.Get("/", h.GetDocument)
				item.Delete("/", h.DeleteDocument)
				item.Get("/pages", h.PageTexts)
				item.Post("/locate", h.LocatePage)
			})
		})
	})

	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
// Writes get no deadline since answers and uploads wait on the model.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
