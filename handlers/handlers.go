package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"treegraph/graph"
	"treegraph/logger"
	"treegraph/models"
	"treegraph/risk"
)

// defaultRiskThreshold applies when a risk query omits the threshold
// parameter.
const defaultRiskThreshold = 1e-6

// Handler contains the read-only HTTP handlers over one finalized graph
type Handler struct {
	Graph *graph.Graph
}

// NewHandler creates and returns a new Handler instance
func NewHandler(g *graph.Graph) *Handler {
	return &Handler{Graph: g}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// blockHash extracts and validates the hash path variable
func blockHash(w http.ResponseWriter, r *http.Request) (models.Hash, bool) {
	raw := mux.Vars(r)["hash"]
	h, err := models.ParseHash(raw)
	if err != nil {
		logger.Logger.Error("Invalid block hash in request", zap.String("hash", raw), zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid block hash")
		return models.Hash{}, false
	}
	return h, true
}

// riskParams reads the adversary fraction (required) and risk threshold
// (optional) query parameters
func riskParams(w http.ResponseWriter, r *http.Request, withThreshold bool) (float64, float64, bool) {
	rawAdv := r.URL.Query().Get("adversary")
	adversary, err := strconv.ParseFloat(rawAdv, 64)
	if err != nil || adversary <= 0 || adversary >= 1 {
		writeError(w, http.StatusBadRequest, "adversary must be a fraction in (0, 1)")
		return 0, 0, false
	}
	threshold := defaultRiskThreshold
	if withThreshold {
		if raw := r.URL.Query().Get("threshold"); raw != "" {
			threshold, err = strconv.ParseFloat(raw, 64)
			if err != nil || threshold <= 0 || threshold >= 1 {
				writeError(w, http.StatusBadRequest, "threshold must be a fraction in (0, 1)")
				return 0, 0, false
			}
		}
	}
	return adversary, threshold, true
}

// PivotChain handles GET requests for the full pivot chain
func (h *Handler) PivotChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pivot_chain": h.Graph.PivotChain(),
	})
}

// GetBlock handles GET requests for one block record with its derived fields
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	hash, ok := blockHash(w, r)
	if !ok {
		return
	}
	block, found := h.Graph.Block(hash)
	if !found {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"block": block})
}

// EpochSpan handles GET requests for a pivot block's epoch span
func (h *Handler) EpochSpan(w http.ResponseWriter, r *http.Request) {
	hash, ok := blockHash(w, r)
	if !ok {
		return
	}
	if _, found := h.Graph.Block(hash); !found {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	span, err := h.Graph.EpochSpan(hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"block":      hash,
		"epoch_span": span,
	})
}

// AvgEpochTime handles GET requests for the running mean epoch span up to a
// pivot block
func (h *Handler) AvgEpochTime(w http.ResponseWriter, r *http.Request) {
	hash, ok := blockHash(w, r)
	if !ok {
		return
	}
	if _, found := h.Graph.Block(hash); !found {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	avg, err := h.Graph.AvgEpochTime(hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"block":          hash,
		"avg_epoch_time": avg,
	})
}

// ConfirmationRisk handles GET requests for the first time offset at which
// a pivot block's revert risk falls below the threshold. A threshold that is
// never reached is a normal outcome, reported with reached=false.
func (h *Handler) ConfirmationRisk(w http.ResponseWriter, r *http.Request) {
	hash, ok := blockHash(w, r)
	if !ok {
		return
	}
	adversary, threshold, ok := riskParams(w, r, true)
	if !ok {
		return
	}
	result, reached, err := risk.ConfirmationRisk(h.Graph, hash, adversary, threshold)
	if err != nil {
		logger.Logger.Error("Confirmation risk query failed", zap.String("block", hash.String()), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !reached {
		writeJSON(w, http.StatusOK, map[string]interface{}{"reached": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reached": true,
		"result":  result,
	})
}

// ConfirmationRiskSeries handles GET requests for the full risk curve of a
// pivot block
func (h *Handler) ConfirmationRiskSeries(w http.ResponseWriter, r *http.Request) {
	hash, ok := blockHash(w, r)
	if !ok {
		return
	}
	adversary, _, ok := riskParams(w, r, false)
	if !ok {
		return
	}
	curve, err := risk.ConfirmationRiskSeries(h.Graph, hash, adversary)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"series": curve})
}

// AvgConfirmTime handles GET requests for the epoch-size-weighted average
// confirmation time over all pivot blocks
func (h *Handler) AvgConfirmTime(w http.ResponseWriter, r *http.Request) {
	adversary, threshold, ok := riskParams(w, r, true)
	if !ok {
		return
	}
	avg, count, err := risk.AvgConfirmTime(h.Graph, adversary, threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"avg_confirm_time": avg,
		"count":            count,
	})
}

// ExportEdges handles GET requests for the parent,child edge CSV
func (h *Handler) ExportEdges(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	if err := h.Graph.ExportEdges(w); err != nil {
		logger.Logger.Error("Edge export failed", zap.Error(err))
	}
}

// ExportIndices handles GET requests for the hash,index mapping CSV
func (h *Handler) ExportIndices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	if err := h.Graph.ExportIndices(w); err != nil {
		logger.Logger.Error("Index export failed", zap.Error(err))
	}
}
