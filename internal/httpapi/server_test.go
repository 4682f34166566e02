package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/renfield-project/renfield/internal/config"
	"github.com/renfield-project/renfield/internal/observability"
)

type stubWS struct{ hits int }

func (s *stubWS) ServeHTTP(w http.ResponseWriter, _ *http.Request) { s.hits++ }

type stubReadier struct{ err error }

func (s stubReadier) Ready() error { return s.err }

func TestHealthz(t *testing.T) {
	srv := New(config.Config{}, nil, nil, observability.NewMetrics("test_httpapi_health"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestReadyzReportsReadierError(t *testing.T) {
	srv := New(config.Config{}, nil, stubReadier{err: errors.New("database unreachable")}, observability.NewMetrics("test_httpapi_ready"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}

	var payload errorResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "not_ready" {
		t.Fatalf("code = %q, want %q", payload.Code, "not_ready")
	}
}

func TestReadyzOKWithNoReadier(t *testing.T) {
	srv := New(config.Config{}, nil, nil, observability.NewMetrics("test_httpapi_ready_nil"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestWebSocketRoutesMountTheMultiplexer(t *testing.T) {
	ws := &stubWS{}
	srv := New(config.Config{}, ws, nil, observability.NewMetrics("test_httpapi_ws"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/ws", "/ws/satellite", "/ws/device"} {
		if _, err := http.Get(ts.URL + path); err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
	}
	if ws.hits != 3 {
		t.Fatalf("ws handler hits = %d, want 3", ws.hits)
	}
}

func TestPerfLatencyRoundTrip(t *testing.T) {
	metrics := observability.NewMetrics("test_httpapi_perf")
	srv := New(config.Config{}, nil, nil, metrics)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	resetRes, err := http.Post(ts.URL+"/v1/perf/latency/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/perf/latency/reset error = %v", err)
	}
	defer resetRes.Body.Close()
	if resetRes.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resetRes.StatusCode, http.StatusOK)
	}
}
