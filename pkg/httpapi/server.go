// Package httpapi exposes the assistant over a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/middleware/metrics"
	"aura/pkg/assistant"
	"aura/pkg/config"
	"aura/pkg/logx"
	"aura/pkg/persistence"
	"aura/pkg/state"
	"aura/pkg/version"
)

// APIKeyMissingDetail is the detail returned when a run cannot be attempted for
// lack of credentials.
const APIKeyMissingDetail = "API key missing. Please configure it in Settings."

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Threads is the persistence the thread endpoints need.
type Threads interface {
	assistant.ThreadStore
	ListThreads(ctx context.Context, skip, limit int) ([]*persistence.Thread, error)
	DeleteThread(ctx context.Context, id string) error
}

// Server serves the assistant API.
type Server struct {
	assistant *assistant.Service
	settings  *config.Store
	threads   Threads
	usage     *metrics.UsageRecorder
	metrics   http.Handler
	logger    *logx.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithThreads enables the chat and thread endpoints.
func WithThreads(t Threads) Option {
	return func(s *Server) { s.threads = t }
}

// WithUsage includes per-model usage in diagnose responses.
func WithUsage(u *metrics.UsageRecorder) Option {
	return func(s *Server) { s.usage = u }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates an API server for svc.
func NewServer(svc *assistant.Service, opts ...Option) *Server {
	s := &Server{
		assistant: svc,
		settings:  svc.Settings(),
		logger:    logx.NewLogger("httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/healthz", s.handleHealth)
	mux.HandleFunc("POST /api/v1/run", s.handleRun)

	// Threads
	mux.HandleFunc("POST /api/v1/chat", s.requireThreads(s.handleChat))
	mux.HandleFunc("GET /api/v1/threads", s.requireThreads(s.handleListThreads))
	mux.HandleFunc("POST /api/v1/threads", s.requireThreads(s.handleCreateThread))
	mux.HandleFunc("GET /api/v1/threads/{id}", s.requireThreads(s.handleGetThread))
	mux.HandleFunc("DELETE /api/v1/threads/{id}", s.requireThreads(s.handleDeleteThread))

	// Settings
	mux.HandleFunc("GET /api/v1/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/v1/settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /api/v1/settings/keys", s.handleAddKey)
	mux.HandleFunc("DELETE /api/v1/settings/keys/{id}", s.handleDeleteKey)
	mux.HandleFunc("POST /api/v1/settings/models", s.handleAddModel)
	mux.HandleFunc("DELETE /api/v1/settings/models/{id}", s.handleDeleteModel)

	mux.HandleFunc("GET /api/v1/debug/diagnose", s.handleDiagnose)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// ListenAndServe serves the API on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) requireThreads(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.threads == nil {
			writeError(w, http.StatusServiceUnavailable, "Thread storage not available")
			return
		}
		next(w, r)
	}
}

// handleHealth implements GET /api/v1/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

type runRequest struct {
	UserContext map[string]any `json:"user_context"`
	Query       string         `json:"query"`
}

type messageView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type runResponse struct {
	Messages []messageView      `json:"messages"`
	AuditLog []state.AuditEntry `json:"audit_log"`
	RunID    string             `json:"run_id"`
}

// handleRun implements POST /api/v1/run: one stateless turn.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.assistant.Run(r.Context(), req.Query, req.UserContext)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	resp := runResponse{RunID: res.RunID, AuditLog: res.State.AuditLog, Messages: make([]messageView, 0, len(res.State.Messages))}
	for _, m := range res.State.Messages {
		resp.Messages = append(resp.Messages, messageView{Role: string(m.Role), Content: m.Content, Name: m.Name})
	}
	if resp.AuditLog == nil {
		resp.AuditLog = []state.AuditEntry{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	UserContext map[string]any `json:"user_context"`
	Message     string         `json:"message"`
	ThreadID    string         `json:"thread_id"`
}

type chatResponse struct {
	AuditLog []state.AuditEntry `json:"audit_log"`
	Response string             `json:"response"`
	ThreadID string             `json:"thread_id"`
	RunID    string             `json:"run_id"`
}

// handleChat implements POST /api/v1/chat: one turn on a persisted thread.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.assistant.Chat(r.Context(), req.ThreadID, req.Message, req.UserContext)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chatResponse{
		AuditLog: out.AuditLog,
		Response: out.Response,
		ThreadID: out.ThreadID,
		RunID:    out.RunID,
	})
}

// handleListThreads implements GET /api/v1/threads?skip=&limit=.
func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	skip, err := intParam(r, "skip", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid skip parameter")
		return
	}
	limit, err := intParam(r, "limit", persistence.DefaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter")
		return
	}
	threads, err := s.threads.ListThreads(r.Context(), skip, limit)
	if err != nil {
		s.logger.Error("Failed to list threads: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list threads")
		return
	}
	if threads == nil {
		threads = []*persistence.Thread{}
	}
	s.writeJSON(w, http.StatusOK, threads)
}

// handleCreateThread implements POST /api/v1/threads.
func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	thread, err := s.threads.CreateThread(r.Context(), req.Title)
	if err != nil {
		s.logger.Error("Failed to create thread: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create thread")
		return
	}
	thread.Messages = []*persistence.Message{}
	s.writeJSON(w, http.StatusOK, thread)
}

// handleGetThread implements GET /api/v1/threads/{id}.
func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.threads.GetThread(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeThreadError(w, err)
		return
	}
	if thread.Messages == nil {
		thread.Messages = []*persistence.Message{}
	}
	s.writeJSON(w, http.StatusOK, thread)
}

// handleDeleteThread implements DELETE /api/v1/threads/{id}.
func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.threads.DeleteThread(r.Context(), r.PathValue("id")); err != nil {
		s.writeThreadError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleDiagnose implements GET /api/v1/debug/diagnose.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.assistant.Diagnose(r.Context(), s.usage))
}

// writeRunError maps orchestration errors to HTTP statuses.
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var cfgErr *invoke.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusUnprocessableEntity, APIKeyMissingDetail)
	case errors.Is(err, assistant.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, persistence.ErrThreadNotFound):
		writeError(w, http.StatusNotFound, "Thread not found")
	default:
		s.logger.Error("Run failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeThreadError(w http.ResponseWriter, err error) {
	if errors.Is(err, persistence.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}
	s.logger.Error("Thread operation failed: %v", err)
	writeError(w, http.StatusInternalServerError, "Thread operation failed")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
