package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fusion"
	"github.com/opensource-finance/harrier/internal/sar"
)

// maxIngestBatch bounds the transactions accepted per POST /transactions.
const maxIngestBatch = 10000

// Handler holds dependencies for API handlers.
type Handler struct {
	store   domain.Store
	cache   domain.Cache
	bus     domain.EventBus
	engine  *fusion.Engine
	reports *sar.Builder
	version string
}

// NewHandler creates a new API handler. Cache and bus are optional.
func NewHandler(store domain.Store, cache domain.Cache, bus domain.EventBus, engine *fusion.Engine, reports *sar.Builder, version string) *Handler {
	return &Handler{
		store:   store,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		reports: reports,
		version: version,
	}
}

// IngestRequest is the request body for POST /transactions.
type IngestRequest struct {
	Transactions []domain.TransactionRequest `json:"transactions"`
}

// IngestResponse is the response for POST /transactions.
type IngestResponse struct {
	Received       int      `json:"received"`
	Inserted       int      `json:"inserted"`
	TransactionIDs []string `json:"transactionIds"`
	Published      bool     `json:"published"`
}

// IngestTransactions handles POST /transactions. Stored transactions are
// announced on the bus so the worker rescores both parties.
func (h *Handler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions are required",
		})
		return
	}
	if len(req.Transactions) > maxIngestBatch {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": "too many transactions in one request",
		})
		return
	}

	now := time.Now().UTC()
	txs := make([]*domain.Transaction, 0, len(req.Transactions))
	ids := make([]string, 0, len(req.Transactions))
	var accounts []string
	for _, t := range req.Transactions {
		if t.FromAccount == "" || t.ToAccount == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "fromAccount and toAccount are required",
			})
			return
		}
		if t.Amount <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "amount must be positive",
			})
			return
		}

		tx := t.ToTransaction(now)
		tx.Amount = decimal.NewFromFloat(tx.Amount).Round(2).InexactFloat64()
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}

		txs = append(txs, tx)
		ids = append(ids, tx.ID)
		accounts = append(accounts, tx.FromAccount, tx.ToAccount)
	}

	inserted, err := h.store.SaveTransactions(ctx, txs)
	if err != nil {
		slog.Error("failed to save transactions",
			"count", len(txs),
			"trace_id", GetTraceID(ctx),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store transactions",
		})
		return
	}

	if h.cache != nil && inserted > 0 {
		if err := h.cache.InvalidateAssessments(ctx, accounts); err != nil {
			slog.Warn("failed to invalidate cached assessments",
				"accounts", len(accounts),
				"trace_id", GetTraceID(ctx),
				"error", err,
			)
		}
	}

	resp := IngestResponse{
		Received:       len(txs),
		Inserted:       inserted,
		TransactionIDs: ids,
	}

	if h.bus != nil && inserted > 0 {
		payload, _ := json.Marshal(domain.IngestEvent{TransactionIDs: ids, Accounts: accounts})
		if err := h.bus.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
			slog.Error("failed to publish ingest event",
				"trace_id", GetTraceID(ctx),
				"error", err,
			)
		} else {
			resp.Published = true
		}
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// ListTransactions handles GET /transactions?since=&scenario=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC3339 timestamp",
			})
			return
		}
		since = parsed
	}
	scenario := r.URL.Query().Get("scenario")

	txs, err := h.store.FetchTransactionsSince(r.Context(), since, scenario)
	if err != nil {
		slog.Error("failed to fetch transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch transactions",
		})
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		checks["store"] = err.Error()
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["cache"] = err.Error()
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["bus"] = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeAssessmentError maps scoring failures onto HTTP statuses.
func writeAssessmentError(w http.ResponseWriter, accountID string, err error) {
	if fusion.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":     "account not found",
			"accountId": accountID,
		})
		return
	}
	slog.Error("assessment failed", "account_id", accountID, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":     "assessment failed",
		"accountId": accountID,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
