// Package httpapi implements the HTTP boundary of the write path: the batch
// record endpoint, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/eventvault/internal/adapters/driven/auth"
	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driving"
	"github.com/custodia-labs/eventvault/internal/logger"
)

// Request headers understood by the batch endpoint.
const (
	// HeaderAPIKey carries the caller's API key.
	HeaderAPIKey = "X-Api-Key"

	// HeaderIfUnmodifiedSince carries the optimistic-concurrency bound for
	// replace attempts, RFC1123 format.
	HeaderIfUnmodifiedSince = "If-Unmodified-Since"
)

// maxBodyBytes bounds a batch request body (8 MiB).
const maxBodyBytes = 8 << 20

// Server handles the HTTP requests for the record write path.
type Server struct {
	ingest  driving.IngestService
	keys    *auth.KeyRing
	limiter *rate.Limiter
}

// NewServer creates and configures a new API server. ratePerSec bounds
// accepted batch requests per second; zero disables limiting.
func NewServer(ingest driving.IngestService, keys *auth.KeyRing, ratePerSec float64) *Server {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1)
	}
	return &Server{ingest: ingest, keys: keys, limiter: limiter}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/records", s.handleRecords)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// handleRecords accepts a JSON array of records and runs the batch through
// the write path. The response status code is the engine's composed status.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	caller, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or missing api key")
		return
	}

	var records []domain.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed body: %v", err))
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one record")
		return
	}

	result, err := s.ingest.ProcessBatch(r.Context(), caller, records)
	if errors.Is(err, domain.ErrEmptyBatch) {
		writeError(w, http.StatusBadRequest, "batch must contain at least one record")
		return
	}
	if err != nil {
		logger.Error("process batch: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, result.Status, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the caller from the API key and attaches the
// optional not-modified-since precondition.
func (s *Server) authenticate(r *http.Request) (domain.Caller, bool) {
	key := r.Header.Get(HeaderAPIKey)
	if key == "" {
		return domain.Caller{}, false
	}
	caller, ok := s.keys.Resolve(key)
	if !ok {
		return domain.Caller{}, false
	}

	if raw := r.Header.Get(HeaderIfUnmodifiedSince); raw != "" {
		if t, err := http.ParseTime(raw); err == nil {
			caller.IfUnmodifiedSince = &t
		} else {
			logger.Warn("ignoring unparseable %s header: %q", HeaderIfUnmodifiedSince, raw)
		}
	}
	return caller, true
}

// ListenAndServe starts the HTTP server on the specified address and blocks
// until the context is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": status, "message": message})
}
