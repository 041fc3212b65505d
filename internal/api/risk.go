package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fusion"
	"github.com/opensource-finance/harrier/internal/sar"
)

// Defaults for GET /risk/high.
const (
	defaultHighLimit = 100
	maxHighLimit     = 10000
)

// GetRisk handles GET /accounts/{id}/risk with a fresh assessment.
func (h *Handler) GetRisk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.engine.Assess(r.Context(), id)
	if err != nil {
		writeAssessmentError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ExplainResponse is the response for GET /accounts/{id}/explain.
type ExplainResponse struct {
	Explanation *domain.Explanation    `json:"explanation"`
	Components  domain.ComponentScores `json:"components"`
}

// Explain handles GET /accounts/{id}/explain.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exp, a, err := h.engine.Explain(r.Context(), id)
	if err != nil {
		writeAssessmentError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, ExplainResponse{Explanation: exp, Components: a.Components})
}

// GetNetwork handles GET /accounts/{id}/network.
func (h *Handler) GetNetwork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.engine.Assessment(r.Context(), id)
	if err != nil {
		writeAssessmentError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": id,
		"network":   a.Network,
	})
}

// GetLayering handles GET /accounts/{id}/layering.
func (h *Handler) GetLayering(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.engine.Assessment(r.Context(), id)
	if err != nil {
		writeAssessmentError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": id,
		"layering":  a.Layering,
	})
}

// GetBehavior handles GET /accounts/{id}/behavior.
func (h *Handler) GetBehavior(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.engine.Assessment(r.Context(), id)
	if err != nil {
		writeAssessmentError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId":  id,
		"behavioral": a.Behavioral,
	})
}

// GetEgo handles GET /accounts/{id}/ego.
func (h *Handler) GetEgo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ego, err := h.engine.EgoGraph(r.Context(), id)
	if err != nil {
		writeAssessmentError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, sar.Snapshot(ego, id))
}

// GetSAR handles GET /accounts/{id}/sar.
func (h *Handler) GetSAR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	exp, a, err := h.engine.Explain(ctx, id)
	if err != nil {
		writeAssessmentError(w, id, err)
		return
	}
	ego, err := h.engine.EgoGraph(ctx, id)
	if err != nil {
		slog.Warn("ego network unavailable for SAR", "account_id", id, "error", err)
		ego = nil
	}
	account, err := h.store.GetAccount(ctx, id)
	if err != nil {
		slog.Debug("no account enrichment for SAR", "account_id", id, "error", err)
		account = nil
	}

	report, err := h.reports.Build(ctx, a, exp, ego, account)
	if err != nil {
		writeAssessmentError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// NetworkVisualization handles GET /network/visualization.
func (h *Handler) NetworkVisualization(w http.ResponseWriter, r *http.Request) {
	ov := h.engine.Overview(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":      ov.Nodes,
		"links":      ov.Links,
		"totalNodes": len(ov.Nodes),
		"totalEdges": len(ov.Links),
	})
}

// Patterns handles GET /patterns?type=.
func (h *Handler) Patterns(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")
	report, err := h.engine.Patterns(r.Context(), kind)
	if errors.Is(err, fusion.ErrUnknownPattern) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		slog.Error("pattern detection failed", "type", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "pattern detection failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HighRisk handles GET /risk/high?threshold=&limit=.
func (h *Handler) HighRisk(w http.ResponseWriter, r *http.Request) {
	threshold := domain.CriticalThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 || parsed > 100 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "threshold must be a number between 0 and 100",
			})
			return
		}
		threshold = parsed
	}

	limit := defaultHighLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = min(parsed, maxHighLimit)
	}

	records, err := h.store.FetchAccountsAboveThreshold(r.Context(), threshold, limit)
	if err != nil {
		slog.Error("failed to fetch high-risk accounts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch high-risk accounts",
		})
		return
	}

	accounts := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		accounts = append(accounts, map[string]any{
			"accountId":   rec.AccountID,
			"riskScore":   rec.RiskScore,
			"riskLevel":   domain.LevelForScore(rec.RiskScore),
			"lastUpdated": rec.LastUpdated,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"threshold": threshold,
		"count":     len(accounts),
		"accounts":  accounts,
	})
}

// BatchRequest is the request body for POST /risk/batch.
type BatchRequest struct {
	AccountIDs []string `json:"accountIds"`
}

// BatchRescore handles POST /risk/batch. An empty body rescores every account.
func (h *Handler) BatchRescore(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	n, err := h.engine.BatchRescore(r.Context(), req.AccountIDs)
	if err != nil {
		slog.Error("batch rescore failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "batch rescore failed",
			"updated": n,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "completed",
		"updated": n,
	})
}

// Statistics handles GET /statistics.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Statistics(r.Context())
	if err != nil {
		slog.Error("failed to gather statistics", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to gather statistics",
		})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
