// Package httpapi exposes the upload service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/auth"
	"github.com/saviobatista/movement-logger/internal/types"
	"github.com/saviobatista/movement-logger/internal/uploads"
)

const (
	// maxUploadSize bounds a multipart upload request
	maxUploadSize = 32 << 20
	dateLayout    = "2006-01-02"
)

// Uploads is the part of the upload service the API calls
type Uploads interface {
	Preview(ctx context.Context, files []uploads.File) (*uploads.PreviewResult, error)
	Save(ctx context.Context, userID string, req uploads.SaveRequest) (*types.Upload, error)
	List(ctx context.Context, userID string) ([]types.Upload, error)
	Records(ctx context.Context, userID, uploadID string) ([]types.FlightRecord, error)
	Delete(ctx context.Context, userID, uploadID string) error
	Summarize(ctx context.Context, userID string, from, to time.Time) ([]types.DailySummary, error)
}

// Verifier resolves an Authorization header to a user id
type Verifier interface {
	Verify(ctx context.Context, header string) (string, error)
}

// ReadinessChecker reports whether the backing stores are reachable
type ReadinessChecker func(ctx context.Context) error

// Server exposes the upload API, health and metrics endpoints.
type Server struct {
	httpServer *http.Server
	uploads    Uploads
	auth       Verifier
	ready      ReadinessChecker
	logger     *zap.Logger
}

// NewServer wires the routes. metrics may be nil to use the default registry.
func NewServer(addr string, svc Uploads, verifier Verifier, ready ReadinessChecker, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	s := &Server{
		uploads: svc,
		auth:    verifier,
		ready:   ready,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/upload", s.handleUpload)
		r.Post("/save_records", s.handleSave)
		r.Get("/get_uploads", s.handleList)
		r.Get("/get_records/{id}", s.handleRecords)
		r.Delete("/delete_upload/{id}", s.handleDelete)
		r.Get("/summary", s.handleSummary)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type userKey struct{}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Verify(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				s.logger.Error("token verification failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serviceError maps upload service errors to HTTP statuses
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, uploads.ErrNoRecords),
		errors.Is(err, uploads.ErrInvalidRecords),
		errors.Is(err, uploads.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, uploads.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, uploads.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
