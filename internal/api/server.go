// Package api exposes the batch trigger and status endpoints over HTTP.
//
// The surface is deliberately small: an operator (or a scheduler) starts a
// batch and then polls it by identifier. Reconciliation results live in the
// batch record and the exception cases; there is no streaming interface.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/orchestrator"
	"card-recon-engine/pkg/errors"
	"card-recon-engine/pkg/logger"
)

// Server serves the reconciliation HTTP API.
type Server struct {
	orch *orchestrator.Orchestrator
	log  logger.Logger
	http *http.Server
}

// NewServer wires the API routes over the given orchestrator.
func NewServer(addr string, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		orch: orch,
		log:  logger.GetGlobalLogger().WithComponent("api_server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batches/start", s.handleStartBatch)
	mux.HandleFunc("GET /api/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// ListenAndServe blocks serving requests until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.http.Addr).Info("Starting HTTP API")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// startBatchRequest is the optional JSON body of a trigger call. An empty
// body triggers a batch with operator SYSTEM and an empty configuration
// snapshot.
type startBatchRequest struct {
	CreatedBy      string `json:"createdBy,omitempty"`
	ConfigSnapshot string `json:"configSnapshot,omitempty"`
}

// startBatchResponse acknowledges a triggered batch. Counters are absent on
// purpose: the batch has only just entered PROCESSING.
type startBatchResponse struct {
	BatchID   string    `json:"batchId"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
}

// batchResponse is the full batch record returned when polling by identifier.
type batchResponse struct {
	BatchID     string     `json:"batchId"`
	Status      string     `json:"status"`
	WindowStart time.Time  `json:"windowStart"`
	WindowEnd   time.Time  `json:"windowEnd"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	CreatedBy   string     `json:"createdBy"`

	TotalProcessed  int `json:"totalTransactionsProcessed"`
	ExactMatches    int `json:"exactMatchesFound"`
	FuzzyMatches    int `json:"fuzzyMatchesFound"`
	UnmatchedBank   int `json:"unmatchedBankTransactions"`
	UnmatchedScheme int `json:"unmatchedSchemeTransactions"`
	Exceptions      int `json:"exceptionsRaised"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	b, err := s.orch.Trigger(r.Context(), req.CreatedBy, req.ConfigSnapshot)
	if err != nil {
		s.log.WithError(err).Error("Failed to trigger batch")
		s.writeError(w, http.StatusServiceUnavailable, "failed to start reconciliation batch")
		return
	}

	s.writeJSON(w, http.StatusCreated, startBatchResponse{
		BatchID:   b.BatchID,
		Status:    string(b.Status),
		StartedAt: b.StartedAt,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if batchID == "" {
		s.writeError(w, http.StatusBadRequest, "missing batch identifier")
		return
	}

	b, err := s.orch.GetBatch(r.Context(), batchID)
	if errors.IsNotFound(err) {
		s.writeError(w, http.StatusNotFound, "batch not found: "+batchID)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("batch_id", batchID).Error("Failed to load batch")
		s.writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}

	s.writeJSON(w, http.StatusOK, toBatchResponse(b))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toBatchResponse(b *batch.Batch) batchResponse {
	return batchResponse{
		BatchID:     b.BatchID,
		Status:      string(b.Status),
		WindowStart: b.WindowStart,
		WindowEnd:   b.WindowEnd,
		StartedAt:   b.StartedAt,
		EndedAt:     b.EndedAt,
		CreatedBy:   b.CreatedBy,

		TotalProcessed:  b.Counters.TotalProcessed,
		ExactMatches:    b.Counters.ExactMatches,
		FuzzyMatches:    b.Counters.FuzzyMatches,
		UnmatchedBank:   b.Counters.UnmatchedBank,
		UnmatchedScheme: b.Counters.UnmatchedScheme,
		Exceptions:      b.Counters.Exceptions,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
