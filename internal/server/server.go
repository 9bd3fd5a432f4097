// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/bimmerbailey/triage/internal/breaker"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/dispatch"
	"github.com/bimmerbailey/triage/internal/pipeline"
	"github.com/bimmerbailey/triage/internal/report"
	"github.com/bimmerbailey/triage/internal/store"
)

const maxRequestBytes = 1 << 20

// ErrOutsideLogRoot rejects a requested file that resolves outside the
// configured log root.
var ErrOutsideLogRoot = errors.New("file is outside the log root")

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*report.AnalysisReport, error)
}

// Store persists analysis outcomes.
type Store interface {
	Save(ctx context.Context, filePath string, rep *report.AnalysisReport, runErr error) error
	Recent(ctx context.Context, limit int) ([]store.Record, error)
}

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	FilePath       string `json:"file_path"`
	MinLevel       string `json:"min_level,omitempty"`
	Provider       string `json:"provider,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	Model          string `json:"model,omitempty"`
	Context        string `json:"context,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Window         string `json:"window,omitempty"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	breakers   *breaker.Registry
	store      Store
	logger     *slog.Logger
	logRoot    string

	mu       sync.RWMutex
	analyzer Analyzer
}

// Option configures a Server.
type Option func(*Server)

// WithStore persists every analysis outcome.
func WithStore(st Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithLogRoot restricts analyzed files to root and its subdirectories.
// Relative paths in requests are resolved against root. An empty root
// allows any path.
func WithLogRoot(root string) Option {
	return func(s *Server) {
		s.logRoot = root
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server listening on addr. breakers is the registry shared
// with the analyzer and is reported by GET /api/v1/breakers.
func New(addr string, a Analyzer, breakers *breaker.Registry, opts ...Option) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:   router,
		breakers: breakers,
		analyzer: a,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: time.Duration(config.MaxTimeoutSeconds)*time.Second + 30*time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/analyze", s.handleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/breakers", s.handleBreakers).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/reports", s.handleReports).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealthCheck).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetAnalyzer swaps the analyzer used by new requests.
func (s *Server) SetAnalyzer(a Analyzer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzer = a
}

func (s *Server) currentAnalyzer() Analyzer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analyzer
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, report.KindInvalidInput, "invalid request body: "+err.Error())
		return
	}

	req, err := body.toPipeline()
	if err != nil {
		writeError(w, http.StatusBadRequest, report.KindInvalidInput, err.Error())
		return
	}
	if s.logRoot != "" && req.FilePath != "" {
		path, err := confine(s.logRoot, req.FilePath)
		if err != nil {
			s.logger.Warn("rejected file outside log root", "file", req.FilePath, "log_root", s.logRoot)
			writeError(w, http.StatusForbidden, report.KindInvalidInput, err.Error())
			return
		}
		req.FilePath = path
	}

	rep, runErr := s.currentAnalyzer().Analyze(r.Context(), req)
	if s.store != nil {
		if err := s.store.Save(r.Context(), req.FilePath, rep, runErr); err != nil {
			s.logger.Error("storing report failed", "file", req.FilePath, "error", err)
		}
	}
	if runErr != nil {
		kind := report.KindOf(runErr)
		writeError(w, StatusFor(runErr), kind, dispatch.ErrorText(runErr))
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func (b AnalyzeRequest) toPipeline() (pipeline.Request, error) {
	req := pipeline.Request{
		FilePath:       b.FilePath,
		MinLevel:       b.MinLevel,
		Provider:       b.Provider,
		APIKey:         b.APIKey,
		Model:          b.Model,
		UserContext:    b.Context,
		TimeoutSeconds: b.TimeoutSeconds,
		Mode:           b.Mode,
	}
	if b.Window != "" {
		window, err := config.ParseDuration(b.Window)
		if err != nil {
			return req, err
		}
		if window <= 0 {
			return req, errors.New("window must be positive")
		}
		req.Window = window
	}
	return req, nil
}

// confine resolves path against root and returns it when it stays inside
// root once symlinks are followed.
func confine(root, path string) (string, error) {
	base, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		base = resolved
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideLogRoot, path)
	}
	return target, nil
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": s.breakers.Snapshot(),
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, report.KindInvalidInput, "report storage is not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, report.KindInvalidInput, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing reports failed", "error", err)
		writeError(w, http.StatusInternalServerError, report.KindInternal, "listing reports failed")
		return
	}

	type summary struct {
		RunID      string          `json:"run_id"`
		FilePath   string          `json:"file_path"`
		Provider   string          `json:"provider,omitempty"`
		Model      string          `json:"model,omitempty"`
		Status     string          `json:"status"`
		ErrorKind  string          `json:"error_kind,omitempty"`
		ErrorText  string          `json:"error,omitempty"`
		Confidence float64         `json:"confidence"`
		Report     json.RawMessage `json:"report,omitempty"`
		CreatedAt  time.Time       `json:"created_at"`
		DurationMS int64           `json:"duration_ms"`
	}
	out := make([]summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summary{
			RunID:      rec.RunID,
			FilePath:   rec.FilePath,
			Provider:   rec.Provider,
			Model:      rec.Model,
			Status:     rec.Status,
			ErrorKind:  rec.ErrorKind,
			ErrorText:  rec.ErrorText,
			Confidence: rec.Confidence,
			Report:     json.RawMessage(rec.Report),
			CreatedAt:  rec.CreatedAt,
			DurationMS: rec.DurationMS,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": out})
}

// handleHealthCheck handles health check requests
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// StatusFor maps an analysis failure to an HTTP status code.
func StatusFor(err error) int {
	switch report.KindOf(err) {
	case report.KindInvalidInput, report.KindDecodeError:
		return http.StatusBadRequest
	case report.KindIoError:
		if errors.Is(err, fs.ErrNotExist) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	case report.KindNoMatchingEntries:
		return http.StatusUnprocessableEntity
	case report.KindCircuitOpen:
		return http.StatusServiceUnavailable
	case report.KindProviderRateLimit:
		return http.StatusTooManyRequests
	case report.KindProviderAuth, report.KindProviderBadRequest, report.KindProviderServer,
		report.KindNetwork, report.KindSerializationError:
		return http.StatusBadGateway
	case report.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, kind report.ErrorKind, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind.String()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
