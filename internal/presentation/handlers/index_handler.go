package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/application/services"
	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
)

// maxBodyBytes bounds request bodies of the index endpoints
const maxBodyBytes = 1 << 12

// IndexHandler triggers manual indexing runs
type IndexHandler struct {
	service *services.IndexService
	logger  *zap.Logger
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(service *services.IndexService, logger *zap.Logger) *IndexHandler {
	return &IndexHandler{
		service: service,
		logger:  logger,
	}
}

// IndexRangeRequest is the body of POST /index
type IndexRangeRequest struct {
	FromBlock *uint64 `json:"from_block"`
	ToBlock   *uint64 `json:"to_block"`
}

// IndexLatestRequest is the optional body of POST /index/latest
type IndexLatestRequest struct {
	Blocks uint64 `json:"blocks"`
}

// RegisterRoutes registers the index routes
func (h *IndexHandler) RegisterRoutes(r chi.Router) {
	r.Post("/index", h.IndexRange)
	r.Post("/index/latest", h.IndexLatest)
}

// IndexRange handles POST /index
func (h *IndexHandler) IndexRange(w http.ResponseWriter, r *http.Request) {
	var req IndexRangeRequest
	if err := decodeBody(r, &req, false); err != nil {
		respondFromError(w, h.logger, "Invalid request body", err)
		return
	}
	if req.FromBlock == nil || req.ToBlock == nil {
		respondFromError(w, h.logger, "Invalid request body",
			apperrors.Validation("index range", "from_block and to_block are required"))
		return
	}

	result, err := h.service.IndexRange(r.Context(), *req.FromBlock, *req.ToBlock)
	if err != nil {
		respondFromError(w, h.logger, "Failed to index range", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// IndexLatest handles POST /index/latest
func (h *IndexHandler) IndexLatest(w http.ResponseWriter, r *http.Request) {
	var req IndexLatestRequest
	if err := decodeBody(r, &req, true); err != nil {
		respondFromError(w, h.logger, "Invalid request body", err)
		return
	}

	result, err := h.service.IndexLatest(r.Context(), req.Blocks)
	if err != nil {
		respondFromError(w, h.logger, "Failed to index latest blocks", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func decodeBody(r *http.Request, dest interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dest); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Validation("decode body", "invalid JSON body: %v", err)
	}
	return nil
}
