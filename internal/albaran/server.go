package albaran

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server handles HTTP requests for documents
type Server struct {
	service   *Service
	basicAuth BasicAuth
	router    chi.Router
}

// BasicAuth holds basic authentication credentials. Empty means no auth.
type BasicAuth struct {
	Username string
	Password string
}

func (b BasicAuth) enabled() bool {
	return b.Username != "" || b.Password != ""
}

// NewServer creates a new Server
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		router:    chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	// CORS sits in front of auth so preflight requests never need credentials
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	}))
	if basicAuth.enabled() {
		s.router.Use(middleware.BasicAuth("Albaran Tracker", map[string]string{
			basicAuth.Username: basicAuth.Password,
		}))
	}

	s.router.Route("/api", s.Attach)
	return s
}

// Attach registers the API routes on r
func (s *Server) Attach(r chi.Router) {
	r.Get("/documents", s.handleListDocuments)
	r.Post("/documents", s.handleUploadDocument)
	r.Get("/documents/{id}", s.handleGetDocument)
	r.Delete("/documents/{id}", s.handleDeleteDocument)
	r.Get("/documents/{id}/image", s.handleGetDocumentImage)
	r.Post("/documents/{id}/process", s.handleProcessDocument)

	r.Get("/stats", s.handleStats)
	r.Post("/extract", s.handleExtract)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
