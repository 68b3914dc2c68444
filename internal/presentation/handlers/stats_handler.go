package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/application/services"
)

// StatsHandler handles HTTP requests for aggregate statistics
type StatsHandler struct {
	service *services.QueryService
	logger  *zap.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(service *services.QueryService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the stats routes
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.GetStats)
}

// GetStats handles GET /stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.GetStats(r.Context())
	if err != nil {
		respondFromError(w, h.logger, "Failed to get stats", err)
		return
	}

	respondJSON(w, http.StatusOK, response)
}
