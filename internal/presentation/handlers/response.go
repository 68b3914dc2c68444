package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
)

// Envelope is the uniform API response shape
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, kind apperrors.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Error: &ErrorBody{Kind: string(kind), Message: message},
	})
}

// respondFromError maps a classified error to a status code.
// Internal details of storage and unknown failures are only logged.
func respondFromError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	kind := apperrors.KindOf(err)

	switch kind {
	case apperrors.KindValidation:
		respondError(w, http.StatusBadRequest, kind, apperrors.Message(err))
	case apperrors.KindTransientNode:
		logger.Warn(msg, zap.Error(err))
		respondError(w, http.StatusBadGateway, kind, "blockchain node unavailable")
	default:
		logger.Error(msg, zap.Error(err))
		respondError(w, http.StatusInternalServerError, kind, msg)
	}
}
