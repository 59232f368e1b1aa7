// Package server exposes the image cache over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/metrics"
	"github.com/LavishGent/imgcache/internal/types"
)

const (
	routeImage  = "image"
	routeSize   = "size"
	routeDebug  = "debug"
	routeHealth = "health"
)

// Backend is the cache as seen by the HTTP layer.
type Backend interface {
	Get(ctx context.Context, url string, s types.Settings) ([]byte, error)
	GetSize(ctx context.Context, url string) (types.Dimensions, error)
	DebugInfo() types.DebugInfo
	Health() types.HealthStatus
}

type Server struct {
	backend      Backend
	validator    *types.RequestValidator
	publisher    types.Publisher
	logger       *slog.Logger
	cacheControl string
	cfg          config.ServerConfig
}

// New builds a server for backend. A nil publisher disables request timings.
func New(cfg *config.Config, backend Backend, publisher types.Publisher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	maxAge := int64(cfg.AutoRefresh.MaxAge.Std() / time.Second)
	return &Server{
		backend: backend,
		validator: types.NewRequestValidator(types.RequestValidationConfig{
			Defaults:       cfg.Format.Settings(),
			AllowedDomains: cfg.Domains,
		}),
		publisher:    publisher,
		logger:       logger.With("component", "http-server"),
		cacheControl: "public, max-age=" + strconv.FormatInt(maxAge, 10),
		cfg:          cfg.Server,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/image", s.instrument(routeImage, s.handleImage))
	mux.HandleFunc("GET /api/image/size", s.instrument(routeSize, s.handleSize))
	mux.HandleFunc("GET /api/image/debug", s.instrument(routeDebug, s.handleDebug))
	mux.HandleFunc("GET /healthz", s.instrument(routeHealth, s.handleHealth))
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout.Std(),
		WriteTimeout: s.cfg.WriteTimeout.Std(),
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	source, settings, err := s.validator.Parse(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := s.backend.Get(r.Context(), source, settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", s.cacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	source, err := s.validator.ParseURL(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	size, err := s.backend.GetSize(r.Context(), source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", s.cacheControl)
	s.writeJSON(w, http.StatusOK, size)
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.backend.DebugInfo())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.backend.Health()
	code := http.StatusOK
	if status == types.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, code, map[string]string{"status": status.String()})
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "query", r.URL.RawQuery, "error", err)
	} else {
		s.logger.Debug("Request rejected", "path", r.URL.Path, "status", code, "error", err)
	}
	s.writeJSON(w, code, errorBody{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

// StatusFor maps a cache error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case types.IsInvalidRequest(err):
		return http.StatusBadRequest
	case types.IsNotFound(err):
		return http.StatusNotFound
	case types.IsInvalidContent(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrClosed), types.IsCircuitOpen(err):
		return http.StatusServiceUnavailable
	case types.IsUpstreamError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer(s.publisher, "http.request", metrics.RouteTag(route))
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		elapsed := timer.Tag(metrics.CodeTag(rec.code)).Stop()
		s.logger.Debug("Request served",
			"route", route,
			"status", rec.code,
			"duration", elapsed,
		)
	}
}
