package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRateLimiter(t *testing.T) {
	r := chi.NewRouter()
	r.Use(RateLimiter(2))
	r.Get("/stats", okHandler)

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		codes[i] = rec.Code

		if rec.Code == http.StatusTooManyRequests {
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON 429 body, got Content-Type %q", ct)
			}

			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Kind string `json:"kind"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode 429 body: %v", err)
			}
			if body.Success || body.Error.Kind != "rate_limited" {
				t.Errorf("unexpected 429 body %+v", body)
			}
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected the first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected the third request to be limited, got %d", codes[2])
	}
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	m := newHTTPMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.middleware)
	r.Get("/transfers/address/{address}", okHandler)

	for _, addr := range []string{"0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transfers/address/"+addr, nil))
	}

	counter := m.requests.WithLabelValues(http.MethodGet, "/transfers/address/{address}", "200")
	if got := promtest.ToFloat64(counter); got != 2 {
		t.Errorf("expected 2 requests under one route label, got %v", got)
	}
	if got := promtest.ToFloat64(m.inFlight); got != 0 {
		t.Errorf("expected no requests in flight, got %v", got)
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	m := newHTTPMetrics(prometheus.NewRegistry())
	handler := m.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	counter := m.requests.WithLabelValues(http.MethodGet, "unmatched", "404")
	if got := promtest.ToFloat64(counter); got != 1 {
		t.Errorf("expected unmatched label to be used, got %v", got)
	}
}

func TestLogger_RecordsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(Logger(zap.New(core)))
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stats?x=1", nil))

	entries := logs.FilterMessage("HTTP request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}

	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("expected client errors at warn level, got %s", entries[0].Level)
	}

	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("expected status 418, got %v", fields["status"])
	}
	if fields["path"] != "/stats" || fields["query"] != "x=1" {
		t.Errorf("unexpected path fields %v", fields)
	}
	if fields["route"] != "/stats" {
		t.Errorf("expected route /stats, got %v", fields["route"])
	}
	if fields["bytes"] != int64(len("short and stout")) {
		t.Errorf("unexpected byte count %v", fields["bytes"])
	}
	if id, _ := fields["request_id"].(string); id == "" {
		t.Error("expected a request id")
	}
}
