package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streamwarden/streamwarden/internal/config"
	"github.com/streamwarden/streamwarden/internal/tier"
)

// newClient points a Client at the test server, scoped to workspace "ws".
func newClient(srv *httptest.Server) *Client {
	return New(config.ControlPlaneConfig{
		Endpoint:  srv.URL,
		Workspace: "ws",
		Timeout:   2 * time.Second,
	})
}

func TestListProcessors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/processors" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"results": []map[string]any{
				{"name": "solar_agg", "state": "STARTED"},
				{"name": "iot_ingest", "state": "STOPPED"},
			},
		})
	}))
	defer srv.Close()

	procs, err := newClient(srv).ListProcessors(context.Background())
	if err != nil {
		t.Fatalf("ListProcessors: %v", err)
	}
	if len(procs) != 2 || procs[0].Name != "solar_agg" || procs[1].State != "STOPPED" {
		t.Errorf("got %+v", procs)
	}
}

func TestGetProcessor_DirectKeyedGet(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"name":  "solar_agg",
			"state": "STARTED",
		})
	}))
	defer srv.Close()

	p, err := newClient(srv).GetProcessor(context.Background(), "solar_agg")
	if err != nil {
		t.Fatalf("GetProcessor: %v", err)
	}
	if p.Name != "solar_agg" {
		t.Errorf("name: got %q", p.Name)
	}
	// One keyed GET, never a list-then-filter.
	if len(requests) != 1 || requests[0] != "GET /ws/processor/solar_agg" {
		t.Errorf("requests: got %v", requests)
	}
}

func TestGetProcessor_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newClient(srv).GetProcessor(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStartProcessor_NoTier(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := newClient(srv).StartProcessor(context.Background(), "solar_agg", "")
	if err != nil {
		t.Fatalf("StartProcessor: %v", err)
	}
	if path != "/ws/processor/solar_agg:start" {
		t.Errorf("path: got %q", path)
	}
	if res.Tier != "" || res.Upgraded {
		t.Errorf("result: got %+v", res)
	}
}

func TestStartProcessor_WithTier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/processor/solar_agg:startWith" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		if body["tier"] != "SP10" {
			t.Errorf("tier: got %q", body["tier"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := newClient(srv).StartProcessor(context.Background(), "solar_agg", tier.SP10)
	if err != nil {
		t.Fatalf("StartProcessor: %v", err)
	}
	if res.Tier != tier.SP10 || res.Upgraded {
		t.Errorf("result: got %+v", res)
	}
}

func TestStartProcessor_TierRejected_RetriesOnce(t *testing.T) {
	var tiers []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		tiers = append(tiers, body["tier"])
		if body["tier"] == "SP10" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`Minimum tier for this workload: SP30`)) //nolint:errcheck
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := newClient(srv).StartProcessor(context.Background(), "solar_agg", tier.SP10)
	if err != nil {
		t.Fatalf("StartProcessor: %v", err)
	}
	if len(tiers) != 2 || tiers[0] != "SP10" || tiers[1] != "SP30" {
		t.Fatalf("tier sequence: got %v", tiers)
	}
	if !res.Upgraded || res.Tier != tier.SP30 || res.RequestedTier != tier.SP10 {
		t.Errorf("result: got %+v", res)
	}
}

func TestStartProcessor_UnparseableRejection_NoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`malformed pipeline definition`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newClient(srv).StartProcessor(context.Background(), "solar_agg", tier.SP10)
	if err == nil {
		t.Fatal("expected error for unparseable rejection")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("requests: got %d, want 1", n)
	}
}

func TestAuthHeaders(t *testing.T) {
	t.Setenv("CP_TEST_KEY", "s3cret")

	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(config.ControlPlaneConfig{
		Endpoint:  srv.URL,
		Workspace: "ws",
		Timeout:   2 * time.Second,
		Auth: config.AuthConfig{
			Mode:   "apikey",
			Header: "X-Api-Key",
			KeyEnv: "CP_TEST_KEY",
		},
	})
	if _, err := c.ListProcessors(context.Background()); err != nil {
		t.Fatalf("ListProcessors: %v", err)
	}
	if gotHeader != "s3cret" {
		t.Errorf("X-Api-Key: got %q", gotHeader)
	}
}

func TestFetchSample_UnitConversion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"name":  "solar_agg",
			"state": "STARTED",
			"stats": map[string]any{
				"inputMessageCount":  1200,
				"outputMessageCount": 1100,
				"dlqMessageCount":    3,
				"memoryUsageBytes":   209715200, // 200 MiB
				"stateSize":          4096,
				"scaleFactor":        2,
				"latency":            map[string]any{"p50": 1500, "p99": 42000},
			},
		})
	}))
	defer srv.Close()

	s, err := newClient(srv).FetchSample(context.Background(), "solar_agg")
	if err != nil {
		t.Fatalf("FetchSample: %v", err)
	}
	if s.MemoryMB != 200 {
		t.Errorf("MemoryMB: got %v, want 200", s.MemoryMB)
	}
	if s.LatencyP50Ms != 1.5 || s.LatencyP99Ms != 42 {
		t.Errorf("latency ms: got p50=%v p99=%v", s.LatencyP50Ms, s.LatencyP99Ms)
	}
	if s.InputCount != 1200 || s.DLQCount != 3 || s.ScaleFactor != 2 {
		t.Errorf("counts: got %+v", s)
	}
}

func TestKnownConnectionNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/connections" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"results": []map[string]any{
				{"name": "solar_kafka", "type": "Kafka"},
				{"name": "warehouse_cluster", "type": "Cluster"},
			},
		})
	}))
	defer srv.Close()

	names := newClient(srv).KnownConnectionNames(context.Background(), []string{"fallback"})
	if len(names) != 2 || names[0] != "solar_kafka" {
		t.Errorf("names: got %v", names)
	}
}

func TestKnownConnectionNames_FallbackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	names := newClient(srv).KnownConnectionNames(context.Background(), []string{"sample_stream_solar"})
	if len(names) != 1 || names[0] != "sample_stream_solar" {
		t.Errorf("names: got %v, want fallback set", names)
	}
}
