// Package api exposes the one HTTP surface this engine keeps: the
// prometheus /metrics endpoint and a read-only re-export of the two
// observability files internal/snapshot writes. The interactive
// dashboard API and its WebSocket feed are out of scope here; this
// keeps the router/CORS/http.Server wiring (gorilla/mux, rs/cors,
// graceful Shutdown) applied to the narrower surface instead.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/atlas-desktop/pairs-engine/internal/metrics"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the bare metrics/snapshot HTTP server.
type Server struct {
	logger          *zap.Logger
	config          *types.ServerConfig
	router          *mux.Router
	httpServer      *http.Server
	snapshotPath    string
	performancePath string
}

// NewServer builds a Server serving /metrics, /snapshot and /performance.
func NewServer(logger *zap.Logger, config *types.ServerConfig, snapshotPath, performancePath string) *Server {
	s := &Server{
		logger:          logger.Named("api"),
		config:          config,
		router:          mux.NewRouter(),
		snapshotPath:    snapshotPath,
		performancePath: performancePath,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/snapshot", s.serveFile(s.snapshotPath)).Methods("GET")
	s.router.HandleFunc("/performance", s.serveFile(s.performancePath)).Methods("GET")
}

// Start begins serving, blocking until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting metrics/snapshot server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Router exposes the underlying mux.Router for tests to drive directly
// via httptest, without going through Start's network listener.
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"healthy"}`)
}

// serveFile re-exports a snapshot.Writer output file read-only, the
// dashboard's only remaining dependency on this server.
func (s *Server) serveFile(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "not written yet", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}
