package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/application/services"
	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
)

// TransferHandler handles HTTP requests for transfers
type TransferHandler struct {
	service *services.QueryService
	logger  *zap.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(service *services.QueryService, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the transfer routes
func (h *TransferHandler) RegisterRoutes(r chi.Router) {
	r.Get("/transfers", h.GetRecentTransfers)
	r.Get("/transfers/address/{address}", h.GetTransfersByAddress)
	r.Get("/tokens/{tokenAddress}/transfers", h.GetTransfersByToken)
}

// GetRecentTransfers handles GET /transfers
func (h *TransferHandler) GetRecentTransfers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondFromError(w, h.logger, "Invalid limit", err)
		return
	}

	response, err := h.service.GetRecentTransfers(r.Context(), limit)
	if err != nil {
		respondFromError(w, h.logger, "Failed to get recent transfers", err)
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetTransfersByAddress handles GET /transfers/address/{address}
func (h *TransferHandler) GetTransfersByAddress(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondFromError(w, h.logger, "Invalid limit", err)
		return
	}

	response, err := h.service.GetTransfersByAddress(r.Context(), chi.URLParam(r, "address"), limit)
	if err != nil {
		respondFromError(w, h.logger, "Failed to get transfers by address", err)
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetTransfersByToken handles GET /tokens/{tokenAddress}/transfers
func (h *TransferHandler) GetTransfersByToken(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondFromError(w, h.logger, "Invalid limit", err)
		return
	}

	response, err := h.service.GetTransfersByToken(r.Context(), chi.URLParam(r, "tokenAddress"), limit)
	if err != nil {
		respondFromError(w, h.logger, "Failed to get transfers by token", err)
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// parseLimit reads ?limit=. A missing value yields 0, which the service maps to its default.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.Validation("parse limit", "limit must be an integer, got %q", v)
	}
	return limit, nil
}
