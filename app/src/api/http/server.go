package httpapi

import (
	"net/http"

	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Server exposes the HTTP transport for the ping recorder.
type Server struct {
	handler http.Handler
}

// NewServer builds the router. proxy serves the shape subscription and may be
// nil when no Electric endpoint is configured.
func NewServer(service domain.RecorderService, proxy http.Handler, logger *infra.Logger) *Server {
	router := chi.NewRouter()
	router.Use(correlationID)
	router.Use(middleware.Recoverer)
	router.Use(infra.HTTPMiddleware(routePattern))

	handler := &handler{service: service, proxy: proxy, logger: logger}
	registerRoutes(router, handler)

	return &Server{handler: router}
}

// Router returns the configured HTTP handler for reuse in tests or external HTTP servers.
func (s *Server) Router() http.Handler {
	return s.handler
}

// ServeHTTP allows Server to satisfy the http.Handler interface directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// correlationID tags the request context with the inbound X-Request-ID, or a
// fresh one, and echoes it on the response.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := infra.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
