package analysis

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/risklens/internal/marketdata"
	"github.com/aristath/risklens/internal/modules/allocation"
)

// Handler exposes the analysis service over HTTP.
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates the HTTP handler for analysis requests.
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("component", "analysis_handler").Logger(),
	}
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.Analyze(req)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeAnalysisError maps domain failures to client errors and hides
// everything else behind a generic message.
func (h *Handler) writeAnalysisError(w http.ResponseWriter, err error) {
	var dataErr *marketdata.DataError
	if errors.As(err, &dataErr) {
		writeError(w, http.StatusBadRequest, dataErr.Reason)
		return
	}

	var optErr *allocation.OptimizationFailureError
	if errors.As(err, &optErr) {
		writeError(w, http.StatusBadRequest, optErr.Error())
		return
	}

	h.log.Error().Err(err).Msg("analysis failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
