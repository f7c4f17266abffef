package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamwarden/streamwarden/internal/config"
	"github.com/streamwarden/streamwarden/internal/pipeline"
	"github.com/streamwarden/streamwarden/internal/profile"
	"github.com/streamwarden/streamwarden/internal/tier"
	"github.com/streamwarden/streamwarden/internal/tiererr"
)

// ErrNotFound is returned when the control plane has no processor or
// definition under the requested name.
var ErrNotFound = errors.New("controlplane: not found")

// Processor is the control plane's view of one stream processor.
type Processor struct {
	Name     string            `json:"name"`
	State    string            `json:"state"`
	Tier     string            `json:"tier,omitempty"`
	Pipeline pipeline.Pipeline `json:"pipeline,omitempty"`
	Stats    ProcessorStats    `json:"stats,omitempty"`
}

// ProcessorStats mirrors the stats object of the processor detail endpoint.
// Memory is reported in bytes and latency in microseconds; ToSample converts
// both to the units the profiler works in.
type ProcessorStats struct {
	InputMessageCount  int64        `json:"inputMessageCount"`
	OutputMessageCount int64        `json:"outputMessageCount"`
	DLQMessageCount    int64        `json:"dlqMessageCount"`
	MemoryUsageBytes   int64        `json:"memoryUsageBytes"`
	StateSize          int64        `json:"stateSize"`
	ScaleFactor        float64      `json:"scaleFactor"`
	Latency            LatencyStats `json:"latency"`
}

// LatencyStats holds processing-latency percentiles in microseconds.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P99 float64 `json:"p99"`
}

// ToSample converts raw control-plane stats into a profiling sample.
func (s ProcessorStats) ToSample() profile.Sample {
	return profile.Sample{
		MemoryMB:       float64(s.MemoryUsageBytes) / (1 << 20),
		InputCount:     s.InputMessageCount,
		OutputCount:    s.OutputMessageCount,
		DLQCount:       s.DLQMessageCount,
		LatencyP50Ms:   s.Latency.P50 / 1000,
		LatencyP99Ms:   s.Latency.P99 / 1000,
		StateSizeBytes: s.StateSize,
		ScaleFactor:    s.ScaleFactor,
	}
}

// Connection is one named connection registered in the workspace.
type Connection struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// StartResult reports the outcome of a start request, including any tier
// upgrade the control plane forced.
type StartResult struct {
	Name          string    `json:"name"`
	Tier          tier.Tier `json:"tier,omitempty"`
	RequestedTier tier.Tier `json:"requested_tier,omitempty"`
	Upgraded      bool      `json:"upgraded,omitempty"`
}

// Client is an HTTP/JSON client for the control-plane API. All operations
// are scoped to the configured workspace.
type Client struct {
	base string
	http *http.Client
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// New builds a Client for the configured control plane. The base URL is
// endpoint/workspace; every request carries the configured auth headers.
func New(cfg config.ControlPlaneConfig) *Client {
	return &Client{
		base: strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Workspace,
		http: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, auth: cfg.Auth},
			Timeout:   cfg.Timeout,
		},
	}
}

// ListProcessors returns every processor in the workspace.
func (c *Client) ListProcessors(ctx context.Context) ([]Processor, error) {
	var out struct {
		Results []Processor `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/processors", nil, &out); err != nil {
		return nil, fmt.Errorf("controlplane: list processors: %w", err)
	}
	return out.Results, nil
}

// GetProcessor fetches one processor by name. The lookup is a direct keyed
// GET; it never lists the workspace to find one processor.
func (c *Client) GetProcessor(ctx context.Context, name string) (*Processor, error) {
	var p Processor
	if err := c.do(ctx, http.MethodGet, "/processor/"+url.PathEscape(name), nil, &p); err != nil {
		return nil, fmt.Errorf("controlplane: get processor %q: %w", name, err)
	}
	return &p, nil
}

// CreateProcessor registers a new processor from a local definition.
func (c *Client) CreateProcessor(ctx context.Context, def *pipeline.Definition) error {
	body := map[string]any{
		"name":     def.Name,
		"pipeline": def.Pipeline,
	}
	if def.Options != nil {
		body["options"] = def.Options
	}
	if err := c.do(ctx, http.MethodPost, "/processor", body, nil); err != nil {
		return fmt.Errorf("controlplane: create processor %q: %w", def.Name, err)
	}
	return nil
}

// UpdateProcessor replaces an existing processor's pipeline in place.
func (c *Client) UpdateProcessor(ctx context.Context, def *pipeline.Definition) error {
	body := map[string]any{"pipeline": def.Pipeline}
	if def.Options != nil {
		body["options"] = def.Options
	}
	if err := c.do(ctx, http.MethodPatch, "/processor/"+url.PathEscape(def.Name), body, nil); err != nil {
		return fmt.Errorf("controlplane: update processor %q: %w", def.Name, err)
	}
	return nil
}

// DeleteProcessor removes a processor by name.
func (c *Client) DeleteProcessor(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/processor/"+url.PathEscape(name), nil, nil); err != nil {
		return fmt.Errorf("controlplane: delete processor %q: %w", name, err)
	}
	return nil
}

// StartProcessor starts a processor. With an empty tier it uses the plain
// start endpoint. With a tier it uses the sized-start endpoint; when the
// control plane rejects the tier with a violation message naming a higher
// minimum, the start is retried exactly once at the suggested tier.
func (c *Client) StartProcessor(ctx context.Context, name string, t tier.Tier) (*StartResult, error) {
	if t == "" {
		if err := c.do(ctx, http.MethodPost, "/processor/"+url.PathEscape(name)+":start", nil, nil); err != nil {
			return nil, fmt.Errorf("controlplane: start processor %q: %w", name, err)
		}
		return &StartResult{Name: name}, nil
	}

	path := "/processor/" + url.PathEscape(name) + ":startWith"
	err := c.do(ctx, http.MethodPost, path, map[string]any{"tier": string(t)}, nil)
	if err == nil {
		return &StartResult{Name: name, Tier: t, RequestedTier: t}, nil
	}

	var httpErr *statusError
	if !errors.As(err, &httpErr) || httpErr.code != http.StatusBadRequest {
		return nil, fmt.Errorf("controlplane: start processor %q with tier %s: %w", name, t, err)
	}

	suggested, ok := tiererr.Parse(httpErr.body)
	if !ok || suggested == t {
		return nil, fmt.Errorf("controlplane: start processor %q with tier %s: %w", name, t, err)
	}

	slog.Info("controlplane: tier rejected, retrying at suggested tier",
		"processor", name, "requested", t, "suggested", suggested)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"tier": string(suggested)}, nil); err != nil {
		return nil, fmt.Errorf("controlplane: start processor %q at suggested tier %s: %w", name, suggested, err)
	}
	return &StartResult{Name: name, Tier: suggested, RequestedTier: t, Upgraded: true}, nil
}

// StopProcessor stops a running processor.
func (c *Client) StopProcessor(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodPost, "/processor/"+url.PathEscape(name)+":stop", nil, nil); err != nil {
		return fmt.Errorf("controlplane: stop processor %q: %w", name, err)
	}
	return nil
}

// ListConnections returns every connection registered in the workspace.
func (c *Client) ListConnections(ctx context.Context) ([]Connection, error) {
	var out struct {
		Results []Connection `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/connections", nil, &out); err != nil {
		return nil, fmt.Errorf("controlplane: list connections: %w", err)
	}
	return out.Results, nil
}

// KnownConnectionNames returns the workspace's connection names for the
// validator. On any API failure it logs and returns the fallback set so
// validation still runs offline.
func (c *Client) KnownConnectionNames(ctx context.Context, fallback []string) []string {
	conns, err := c.ListConnections(ctx)
	if err != nil {
		slog.Warn("controlplane: listing connections failed, using fallback set", "err", err)
		return fallback
	}
	names := make([]string, 0, len(conns))
	for _, conn := range conns {
		names = append(names, conn.Name)
	}
	return names
}

// FetchSample implements profile.MetricsSource against the processor detail
// endpoint.
func (c *Client) FetchSample(ctx context.Context, name string) (profile.Sample, error) {
	p, err := c.GetProcessor(ctx, name)
	if err != nil {
		return profile.Sample{}, err
	}
	return p.Stats.ToSample(), nil
}

// Load implements score.Loader: it fetches the processor and wraps its
// deployed pipeline as a definition.
func (c *Client) Load(ctx context.Context, name string) (*pipeline.Definition, error) {
	p, err := c.GetProcessor(ctx, name)
	if err != nil {
		return nil, err
	}
	return &pipeline.Definition{Name: p.Name, Pipeline: p.Pipeline}, nil
}

// statusError carries a non-2xx response's status and body for callers that
// inspect failures (tier-violation parsing).
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	msg := strings.TrimSpace(e.body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, msg)
}

// do performs one JSON request. A nil out discards the response body; a 404
// maps to ErrNotFound, other non-2xx statuses to *statusError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	slog.Debug("controlplane: request", "method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
