package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/outervoid/god/blux"
	"github.com/outervoid/god/indexer"
	"github.com/outervoid/god/logger"
	"github.com/outervoid/god/query"
	"github.com/outervoid/god/store"
	"github.com/outervoid/god/types"
)

// Version is reported by /health
var Version = "dev"

// Service is the part of the query service the API exposes
type Service interface {
	Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error)
	Show(command string) (types.HelpEntry, error)
	List(prefix string) ([]types.HelpEntry, error)
	Suggest(partial string) []string
	Status() *types.IndexStatus
}

// Server provides HTTP API endpoints for the help index
type Server struct {
	service Service
	addr    string
	log     *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server instance
func NewServer(service Service, host string, port int, log *slog.Logger) *Server {
	return &Server{
		service: service,
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		log:     logger.OrDefault(log),
	}
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.addr
}

// Handler sets up all routes and returns the configured handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/commands", s.handleCommands)
	mux.HandleFunc("/v1/commands/{command...}", s.handleCommand)
	mux.HandleFunc("/v1/suggest", s.handleSuggest)
	mux.HandleFunc("/v1/indexStatus", s.handleIndexStatus)
	mux.HandleFunc("/v1/export", s.handleExport)
	mux.HandleFunc("/health", s.handleHealth)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting API server", "addr", s.addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.log.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// HTTP handlers

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST method is allowed", "")
		return
	}

	var request types.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, types.ErrInvalidQuery,
			"Invalid JSON request body", err.Error())
		return
	}

	if strings.TrimSpace(request.Query) == "" {
		s.writeError(w, http.StatusBadRequest, types.ErrInvalidQuery, "Query cannot be empty", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	response, err := s.service.Search(ctx, &request)
	if err != nil {
		s.writeServiceError(w, "Search failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, response)
}

// CommandSummary is one row of the command listing
type CommandSummary struct {
	Command string `json:"command"`
	Root    string `json:"root"`
	Summary string `json:"summary,omitempty"`
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", "")
		return
	}

	entries, err := s.service.List(r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeServiceError(w, "Listing failed", err)
		return
	}
	commands := make([]CommandSummary, 0, len(entries))
	for _, e := range entries {
		commands = append(commands, CommandSummary{Command: e.Command, Root: e.Root, Summary: e.Summary})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"commands": commands,
		"total":    len(commands),
	})
}

// handleCommand accepts "git commit" either URL-escaped or as "git/commit"
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", "")
		return
	}

	command := strings.ReplaceAll(r.PathValue("command"), "/", " ")
	if strings.TrimSpace(command) == "" {
		s.writeError(w, http.StatusBadRequest, types.ErrInvalidQuery, "Command cannot be empty", "")
		return
	}

	entry, err := s.service.Show(command)
	if err != nil {
		s.writeServiceError(w, "Lookup failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", "")
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, http.StatusBadRequest, types.ErrInvalidQuery, "Query parameter 'q' is required", "")
		return
	}

	suggestions := s.service.Suggest(q)
	if suggestions == nil {
		suggestions = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":       q,
		"suggestions": suggestions,
	})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", "")
		return
	}

	s.writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", "")
		return
	}

	entries, err := s.service.List("")
	if err != nil {
		s.writeServiceError(w, "Export failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, blux.Build(entries, time.Now()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET method is allowed", "")
		return
	}

	status := s.service.Status()
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
		"commands":  status.Commands,
	}

	s.writeJSON(w, http.StatusOK, health)
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper methods

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, code types.ErrorCode, message, details string) {
	s.writeJSON(w, statusCode, types.APIError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// writeServiceError maps service errors to status codes
func (s *Server) writeServiceError(w http.ResponseWriter, message string, err error) {
	var notFound *query.NotFoundError
	switch {
	case errors.As(err, &notFound):
		details := ""
		if len(notFound.Suggestions) > 0 {
			details = "did you mean: " + strings.Join(notFound.Suggestions, ", ")
		}
		s.writeError(w, http.StatusNotFound, types.ErrNotFound,
			fmt.Sprintf("Command %q is not indexed", notFound.Command), details)
	case errors.Is(err, indexer.ErrEmptyQuery), errors.Is(err, indexer.ErrInvalidQuery):
		s.writeError(w, http.StatusBadRequest, types.ErrInvalidQuery, message, err.Error())
	case errors.Is(err, store.ErrNoIndex):
		s.writeError(w, http.StatusServiceUnavailable, types.ErrIndexing, message, err.Error())
	default:
		s.log.Error(message, "error", err)
		s.writeError(w, http.StatusInternalServerError, types.ErrInternal, message, err.Error())
	}
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
