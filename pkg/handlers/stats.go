package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// StatsHandler serves the public network summary.
type StatsHandler struct {
	stats  services.StatsService
	logger *zap.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(stats services.StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// RegisterRoutes registers the stats handler's routes on the given mux.
func (h *StatsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/stats", h.Public)
}

// Public handles GET /v1/stats. No authentication.
func (h *StatsHandler) Public(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Public(r.Context())
	if err != nil {
		WriteError(w, h.logger, "public stats", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, stats); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
