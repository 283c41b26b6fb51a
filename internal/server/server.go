// Package server provides the HTTP API for submitting dreams and reading
// their results.
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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jonathan/dream-bridge/internal/config"
	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/logging"
	"github.com/jonathan/dream-bridge/internal/messages"
	"github.com/jonathan/dream-bridge/internal/report"
	"github.com/jonathan/dream-bridge/internal/server/middleware"
	"github.com/jonathan/dream-bridge/internal/server/ratelimit"
	"github.com/jonathan/dream-bridge/internal/status"
)

// DefaultPollInterval paces the dream event stream.
const DefaultPollInterval = time.Second

// Submitter queues a stored dream for processing. It owns audioPath from
// the moment it is called.
type Submitter interface {
	Submit(ctx context.Context, dreamID uuid.UUID, audioPath string) error
}

// Options wires the server to the rest of the service.
type Options struct {
	Config     *config.Config
	Store      db.Store
	Dispatcher Submitter
	Messages   *messages.Service
	Tokens     *JWTService
	Logger     *slog.Logger
	// PollInterval paces the event stream. Zero uses DefaultPollInterval.
	PollInterval time.Duration
	Now          func() time.Time
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	store        db.Store
	dispatcher   Submitter
	status       *status.Service
	messages     *messages.Service
	reports      *report.Service
	rateLimiter  *ratelimit.Limiter
	logger       *slog.Logger
	tempDir      string
	maxUpload    int64
	pollInterval time.Duration
}

// New creates a server instance
func New(opts Options) (*Server, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("config is required")
	case opts.Store == nil:
		return nil, fmt.Errorf("store is required")
	case opts.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	case opts.Messages == nil:
		return nil, fmt.Errorf("message service is required")
	case opts.Tokens == nil:
		return nil, fmt.Errorf("token service is required")
	}

	s := &Server{
		store:        opts.Store,
		dispatcher:   opts.Dispatcher,
		status:       status.New(opts.Store),
		messages:     opts.Messages,
		reports:      report.New(opts.Store, opts.Now),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.FromConfig(opts.Config.RateLimit)),
		logger:       logging.Component(logging.OrNop(opts.Logger), "server"),
		tempDir:      opts.Config.TempDir,
		maxUpload:    opts.Config.MaxUploadBytes(),
		pollInterval: opts.PollInterval,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(s.withLogging)
	router.Use(chimw.Recoverer)
	router.Use(s.withCORS)
	router.Use(s.withRateLimit)

	router.Get("/health", s.handleHealth)
	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(opts.Tokens.AsTokenValidator()))

		r.Post("/dreams", s.handleSubmitDream)
		r.Get("/dreams", s.handleListDreams)
		r.Get("/dreams/{id}", s.handleGetDream)
		r.Get("/dreams/{id}/status", s.handleDreamStatus)
		r.Get("/dreams/{id}/events", s.handleDreamEvents)
		r.Post("/dreams/{id}/personal-message", s.handleRegenerateMessage)
		r.Get("/daily-message", s.handleDailyMessage)
		r.Get("/report", s.handleReport)
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute, // audio uploads
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.rateLimiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Close releases background resources when Run was never called.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their per-route budget.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs each request once it completes.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", logging.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// handleError maps err to a status and logs server-side failures.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.errorResponse(w, code, publicMessage(err))
}

// extractClientID uses the connection address. Forwarded headers are not
// trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Round(time.Second).Seconds())
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.Warn("rate limit exceeded",
		slog.String("client", s.extractClientID(r)),
		slog.String("path", r.URL.Path),
		slog.Int("limit", info.Limit),
	)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
