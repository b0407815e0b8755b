package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/api/middleware"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/jobs"
	"github.com/dvloznov/ledger-import/internal/progress"
)

// MaxRequestBytes bounds the size of an import request body.
const MaxRequestBytes = 10 << 20

// CacheClearer empties the AI suggestion cache.
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}

// ImportsHandler handles import endpoints.
type ImportsHandler struct {
	runner    jobs.Runner
	publisher jobs.Publisher
	store     progress.Store
	log       zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(runner jobs.Runner, publisher jobs.Publisher, store progress.Store, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{
		runner:    runner,
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

type processRequest struct {
	BatchID      string                     `json:"batchId"`
	Transactions []domain.ParsedTransaction `json:"transactions"`
}

type executeRequest struct {
	BatchID      string                        `json:"batchId"`
	Transactions []domain.ConfirmedTransaction `json:"transactions"`
}

// Process handles POST /api/imports/process
func (h *ImportsHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	result, err := h.runner.Process(ctx, req.BatchID, req.Transactions, nil)
	if err != nil {
		h.log.Error().Err(err).Int("transactions", len(req.Transactions)).Msg("Processing aborted")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Processing aborted")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Execute handles POST /api/imports/execute
func (h *ImportsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decode(w, r, &req) {
		return
	}
	if msg := validateConfirmed(req.Transactions); msg != "" {
		middleware.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	result := h.runner.Execute(r.Context(), req.BatchID, req.Transactions, nil)
	middleware.WriteJSON(w, http.StatusOK, result)
}

// ProcessAsync handles POST /api/imports/process/async
func (h *ImportsHandler) ProcessAsync(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decode(w, r, &req) {
		return
	}

	h.submit(w, r, &jobs.ImportJob{
		Type:    jobs.JobTypeProcess,
		BatchID: req.BatchID,
		Parsed:  req.Transactions,
	})
}

// ExecuteAsync handles POST /api/imports/execute/async
func (h *ImportsHandler) ExecuteAsync(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decode(w, r, &req) {
		return
	}
	if msg := validateConfirmed(req.Transactions); msg != "" {
		middleware.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	h.submit(w, r, &jobs.ImportJob{
		Type:      jobs.JobTypeExecute,
		BatchID:   req.BatchID,
		Confirmed: req.Transactions,
	})
}

func (h *ImportsHandler) submit(w http.ResponseWriter, r *http.Request, job *jobs.ImportJob) {
	if err := jobs.Submit(r.Context(), h.publisher, h.store, job); err != nil {
		h.log.Error().Err(err).Str("job_type", string(job.Type)).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	h.log.Info().
		Str("session_id", job.JobID).
		Str("job_type", string(job.Type)).
		Int("transactions", job.Len()).
		Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"sessionId": job.JobID,
		"status":    string(progress.StatusRunning),
	})
}

// GetSession handles GET /api/imports/{session}
func (h *ImportsHandler) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	rec, err := h.store.Get(r.Context(), sessionID)
	if errors.Is(err, progress.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to get session")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, rec)
}

// AICacheHandler handles AI cache endpoints.
type AICacheHandler struct {
	cache CacheClearer
	log   zerolog.Logger
}

// NewAICacheHandler creates a new AI cache handler.
func NewAICacheHandler(cache CacheClearer, log zerolog.Logger) *AICacheHandler {
	return &AICacheHandler{cache: cache, log: log}
}

// Clear handles DELETE /api/ai-cache
func (h *AICacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ClearCache(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear AI cache")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to clear AI cache")
		return
	}

	h.log.Info().Msg("AI cache cleared")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func validateConfirmed(txs []domain.ConfirmedTransaction) string {
	for _, tx := range txs {
		if tx.Kind != "" && !tx.Kind.Valid() {
			return "Invalid transaction type: " + string(tx.Kind)
		}
	}
	return ""
}
