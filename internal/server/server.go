// Package server owns the HTTP surface: delta intake, on-demand scans and
// liveness.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/redpencilio/virus-scanner-service/internal/delta"
	"github.com/redpencilio/virus-scanner-service/internal/files"
	"github.com/redpencilio/virus-scanner-service/internal/records"
	"github.com/redpencilio/virus-scanner-service/internal/scan"
)

// Config carries the transport-level knobs.
type Config struct {
	LogIncomingDelta  bool
	LogScanRequests   bool
	MaxDeltaBodyBytes int64
}

// BatchScanner handles one decoded change notification.
type BatchScanner interface {
	HandleChanges(ctx context.Context, changes delta.Changes) scan.Summary
}

// SingleScanner scans one logical file and persists the record.
type SingleScanner interface {
	Scan(ctx context.Context, logical string) (*records.AnalysisRecord, []byte, error)
}

type Server struct {
	cfg    Config
	batch  BatchScanner
	single SingleScanner
}

func New(cfg Config, batch BatchScanner, single SingleScanner) *Server {
	if cfg.MaxDeltaBodyBytes <= 0 {
		cfg.MaxDeltaBodyBytes = 50 << 20
	}
	return &Server{cfg: cfg, batch: batch, single: single}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/delta", s.handleDelta)
	mux.HandleFunc("/scan", s.handleScan)
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte("Hello from virus-scanner-service"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleDelta accepts a change notification, scans every matching physical
// file and replies once the batch is classified. Per-file failures are never
// reported to the caller; they are observable through logs and metrics only.
func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxDeltaBodyBytes)
	changes, err := delta.Decode(body)
	if err != nil {
		slog.Warn("rejecting change notification", "error", err)
		writeError(w, http.StatusBadRequest, "malformed change notification")
		return
	}
	if s.cfg.LogIncomingDelta {
		raw, _ := json.Marshal(changes)
		slog.Info("receiving delta", "body", string(raw))
	}
	summary := s.batch.HandleChanges(r.Context(), changes)
	if summary.Empty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type scanRequest struct {
	File any `json:"file"`
}

// handleScan runs the synchronous single-file path: validate, resolve, scan,
// persist, and return the stored record.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a file field")
		return
	}
	logical, ok := req.File.(string)
	if !ok || logical == "" {
		writeError(w, http.StatusBadRequest, "file must be a non-empty string")
		return
	}
	if s.cfg.LogScanRequests {
		slog.Info("receiving scan request", "file", logical)
	}
	rec, ack, err := s.single.Scan(r.Context(), logical)
	switch {
	case err == nil:
	case errors.Is(err, scan.ErrEmptyIdentifier), errors.Is(err, scan.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, scan.ErrPhysicalIdentifier), errors.Is(err, files.ErrNoPhysicalFile):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		slog.Error("scan request failed", "file", logical, "error", err)
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	slog.Debug("analysis record stored", "record", rec.ID, "ack_bytes", len(ack))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
