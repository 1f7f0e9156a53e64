package routers

import (
	"treegraph/handlers"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up the read-only HTTP routes over a finalized graph
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// The heaviest-subtree path from genesis to the chain tip
	r.HandleFunc("/pivot-chain", h.PivotChain).Methods("GET")

	// One block record with its derived fields
	r.HandleFunc("/blocks/{hash}", h.GetBlock).Methods("GET")

	// Elapsed time covered by a pivot block's epoch
	r.HandleFunc("/blocks/{hash}/epoch-span", h.EpochSpan).Methods("GET")

	// Running mean of epoch spans from genesis up to a pivot block
	r.HandleFunc("/blocks/{hash}/avg-epoch-time", h.AvgEpochTime).Methods("GET")

	// First time offset at which the revert risk drops below the threshold
	r.HandleFunc("/blocks/{hash}/confirmation-risk", h.ConfirmationRisk).Methods("GET")

	// Full (time offset, risk) curve for inspection or plotting
	r.HandleFunc("/blocks/{hash}/confirmation-risk/series", h.ConfirmationRiskSeries).Methods("GET")

	// Epoch-size-weighted average confirmation time over the pivot chain
	r.HandleFunc("/avg-confirm-time", h.AvgConfirmTime).Methods("GET")

	// Headerless CSV exports for downstream tooling
	r.HandleFunc("/export/edges", h.ExportEdges).Methods("GET")
	r.HandleFunc("/export/indices", h.ExportIndices).Methods("GET")
}
