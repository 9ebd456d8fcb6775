package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"focustimer/internal/core/timekeeper"
)

// RateLimitConfig bounds control requests per client address.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
}

// DefaultRateLimit allows 120 requests per minute.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestLimit: 120, WindowSize: time.Minute}
}

// Server serves the control API of a running instance.
type Server struct {
	engine Engine
	logger zerolog.Logger
	router chi.Router
}

// NewServer builds the router for engine.
func NewServer(engine Engine, limit RateLimitConfig, logger zerolog.Logger) *Server {
	server := &Server{engine: engine, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Route("/v1", func(r chi.Router) {
		if limit.RequestLimit > 0 {
			r.Use(rateLimit(limit))
		}
		r.Get("/status", server.handleStatus)
		r.Post("/intent", server.handleIntentURL)
		r.Post("/{action}", server.handleAction)
	})
	server.router = router
	return server
}

// Handler returns the HTTP handler.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve serves on listener until ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           server.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()

	server.logger.Info().Str("addr", listener.Addr().String()).Msg("control server listening")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve control api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown control api: %w", err)
	}
	<-serveErr
	return nil
}

func (server *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	server.dispatch(w, r, Intent{Action: ActionStatus})
}

func (server *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	intent, err := IntentFromValues(chi.URLParam(r, "action"), r.URL.Query())
	if err != nil {
		server.writeIntentError(w, err)
		return
	}
	server.dispatch(w, r, intent)
}

func (server *Server) handleIntentURL(w http.ResponseWriter, r *http.Request) {
	intent, err := ParseIntent(r.URL.Query().Get("url"))
	if err != nil {
		server.writeIntentError(w, err)
		return
	}
	server.dispatch(w, r, intent)
}

func (server *Server) dispatch(w http.ResponseWriter, r *http.Request, intent Intent) {
	outcome, err := Dispatch(r.Context(), server.engine, intent)
	status := NewStatus(outcome)
	code := http.StatusOK
	if err != nil {
		status.Error = err.Error()
		code = http.StatusInternalServerError
		if errors.Is(err, timekeeper.ErrPersist) {
			server.logger.Warn().Err(err).Str("session_id", status.SessionID).Msg("stop could not persist session")
		} else {
			server.logger.Error().Err(err).Str("action", string(intent.Action)).Msg("dispatch intent")
		}
	}
	server.logger.Debug().
		Str("action", string(intent.Action)).
		Bool("applied", outcome.Applied).
		Str("phase", string(status.Phase)).
		Msg("control intent handled")
	writeJSON(w, code, status)
}

func (server *Server) writeIntentError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	if errors.Is(err, ErrUnknownAction) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, Status{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func rateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(cfg.WindowSize.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, Status{Error: "rate limit exceeded"})
		}),
	)
}
