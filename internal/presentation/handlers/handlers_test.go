package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/application/services"
	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func setupQueryRouter(t *testing.T) (http.Handler, *testutil.MockTransferRepository, *testutil.MockWatermarkRepository) {
	t.Helper()

	transferRepo := testutil.NewMockTransferRepository()
	watermarkRepo := testutil.NewMockWatermarkRepository()
	service := services.NewQueryService(transferRepo, watermarkRepo, nil,
		config.APIConfig{DefaultLimit: 100, MaxLimit: 1000}, zap.NewNop())

	r := chi.NewRouter()
	NewTransferHandler(service, zap.NewNop()).RegisterRoutes(r)
	NewStatsHandler(service, zap.NewNop()).RegisterRoutes(r)
	return r, transferRepo, watermarkRepo
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope %q: %v", rec.Body.String(), err)
	}
	return rec, env
}
