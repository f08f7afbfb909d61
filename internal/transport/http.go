// Package transport exposes the dispatcher over HTTP, WebSocket and MCP.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/validation"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/models"
)

const (
	maxBodyBytes   = 64 << 10
	defaultHistory = 20
)

var chatValidator = validation.MustSchemaValidator("chat_request", validation.ChatRequestSchema)

// Processor is the part of the dispatcher the transports need.
type Processor interface {
	Process(ctx context.Context, text, sessionID string) (*models.Response, error)
	Handlers() []dispatch.HandlerInfo
	History(ctx context.Context, sessionID string, n int) ([]models.SessionEntry, error)
	Forget(ctx context.Context, sessionID string) error
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Options struct {
	Address         string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ServiceName     string
	Version         string
	ReadinessChecks map[string]Check
}

// Server serves the chat API, the WebSocket chat and the operational endpoints.
type Server struct {
	opts       Options
	proc       Processor
	logger     Logger
	router     chi.Router
	httpServer *http.Server
}

type chatRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func NewServer(opts Options, proc Processor, log Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	s := &Server{opts: opts, proc: proc, logger: log}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	// The WebSocket route stays outside the timeout middleware: connections
	// are long lived and every message gets its own deadline.
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Post("/api/chat", s.handleChat)
		r.Get("/api/handlers", s.handleListHandlers)
		r.Get("/api/sessions/{sessionID}/history", s.handleHistory)
		r.Delete("/api/sessions/{sessionID}", s.handleForget)
	})

	return r
}

// Router returns the configured router.
func (s *Server) Router() http.Handler { return s.router }

// Start listens until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("http server listening", map[string]interface{}{"address": s.opts.Address})

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "could not read request body"})
		return
	}

	result, err := chatValidator.ValidateBytes(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "request body is not valid JSON"})
		return
	}
	if !result.Valid {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid chat request", Details: result.GetErrorMessages()})
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "request body is not valid JSON"})
		return
	}

	resp, err := s.proc.Process(r.Context(), req.Text, req.SessionID)
	writeResponse(w, resp, err)
}

// writeResponse maps a Process result onto a status code. Apologies are
// still answers and use 200, except for a session that is still busy.
func writeResponse(w http.ResponseWriter, resp *models.Response, err error) {
	switch {
	case err != nil && apperrors.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, resp)
	case resp != nil && apperrors.HasCode(err, apperrors.ErrCodeSessionBusy):
		writeJSON(w, http.StatusServiceUnavailable, resp)
	case resp != nil:
		writeJSON(w, http.StatusOK, resp)
	default:
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: apperrors.UserMessage(err)})
	}
}

func (s *Server) handleListHandlers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"handlers": s.proc.Handlers()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	n := defaultHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		n = v
	}

	entries, err := s.proc.History(r.Context(), sessionID, n)
	if err != nil {
		s.logger.Warn("history lookup failed", map[string]interface{}{"sessionId": sessionID, "error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: apperrors.UserMessage(err)})
		return
	}
	if entries == nil {
		entries = []models.SessionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "entries": entries})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.proc.Forget(r.Context(), sessionID); err != nil {
		s.logger.Warn("forget session failed", map[string]interface{}{"sessionId": sessionID, "error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: apperrors.UserMessage(err)})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   s.opts.ServiceName,
		"version":   s.opts.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.opts.ReadinessChecks))
	ready := true
	for name, check := range s.opts.ReadinessChecks {
		if err := check(ctx); err != nil {
			ready = false
			checks[name] = "unavailable"
			s.logger.Warn("readiness check failed", map[string]interface{}{"check": name, "error": err.Error()})
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
