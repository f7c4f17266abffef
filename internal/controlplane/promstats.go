package controlplane

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/streamwarden/streamwarden/internal/profile"
)

// Metric families PromStats reads from the exposition. Every family carries
// a "processor" label naming the stream processor the series belongs to.
const (
	promMemoryBytes   = "stream_processor_memory_bytes"
	promInputTotal    = "stream_processor_input_messages_total"
	promOutputTotal   = "stream_processor_output_messages_total"
	promDLQTotal      = "stream_processor_dlq_messages_total"
	promLatencyP50Us  = "stream_processor_latency_p50_microseconds"
	promLatencyP99Us  = "stream_processor_latency_p99_microseconds"
	promStateBytes    = "stream_processor_state_bytes"
	promScaleFactor   = "stream_processor_scale_factor"
	promProcessorName = "processor"
)

// PromStats is a profile.MetricsSource for self-hosted deployments that
// expose processor stats on a Prometheus /metrics endpoint. One scrape per
// refresh interval covers every processor: the exposition is parsed into a
// per-processor sample map and FetchSample answers from the map by key.
type PromStats struct {
	endpoint string
	client   *http.Client
	refresh  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	samples   map[string]profile.Sample
	scrapedAt time.Time
}

// NewPromStats builds a source scraping endpoint. The scrape result is
// reused for refresh; a zero refresh scrapes on every fetch.
func NewPromStats(endpoint string, timeout, refresh time.Duration) *PromStats {
	return &PromStats{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		refresh:  refresh,
		now:      time.Now,
	}
}

// FetchSample returns the named processor's most recent scraped stats.
// An unknown processor maps to ErrNotFound.
func (p *PromStats) FetchSample(ctx context.Context, name string) (profile.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.samples == nil || p.now().Sub(p.scrapedAt) >= p.refresh {
		samples, err := p.scrape(ctx)
		if err != nil {
			return profile.Sample{}, fmt.Errorf("controlplane: scrape %s: %w", p.endpoint, err)
		}
		p.samples = samples
		p.scrapedAt = p.now()
	}

	s, ok := p.samples[name]
	if !ok {
		return profile.Sample{}, fmt.Errorf("controlplane: processor %q not in exposition: %w", name, ErrNotFound)
	}
	return s, nil
}

// scrape fetches and parses the exposition into per-processor samples.
func (p *PromStats) scrape(ctx context.Context) (map[string]profile.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	mfs, err := parseExposition(resp.Body)
	if err != nil {
		return nil, err
	}

	samples := make(map[string]profile.Sample)
	apply := func(mf *dto.MetricFamily, set func(s *profile.Sample, v float64)) {
		perProcessor(mf, func(name string, v float64) {
			s := samples[name]
			set(&s, v)
			samples[name] = s
		})
	}

	apply(mfs[promMemoryBytes], func(s *profile.Sample, v float64) { s.MemoryMB = v / (1 << 20) })
	apply(mfs[promInputTotal], func(s *profile.Sample, v float64) { s.InputCount = int64(v) })
	apply(mfs[promOutputTotal], func(s *profile.Sample, v float64) { s.OutputCount = int64(v) })
	apply(mfs[promDLQTotal], func(s *profile.Sample, v float64) { s.DLQCount = int64(v) })
	apply(mfs[promLatencyP50Us], func(s *profile.Sample, v float64) { s.LatencyP50Ms = v / 1000 })
	apply(mfs[promLatencyP99Us], func(s *profile.Sample, v float64) { s.LatencyP99Ms = v / 1000 })
	apply(mfs[promStateBytes], func(s *profile.Sample, v float64) { s.StateSizeBytes = int64(v) })
	apply(mfs[promScaleFactor], func(s *profile.Sample, v float64) { s.ScaleFactor = v })

	return samples, nil
}

// parseExposition decodes a Prometheus text exposition into metric families.
// A partial result with a non-fatal parse warning is still returned
// successfully.
func parseExposition(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// perProcessor calls fn once per series in mf, keyed by the processor label.
// Series without the label are skipped. Nil mf (family absent from the
// scrape) is a no-op.
func perProcessor(mf *dto.MetricFamily, fn func(name string, value float64)) {
	if mf == nil {
		return
	}
	for _, m := range mf.GetMetric() {
		var name string
		for _, lp := range m.GetLabel() {
			if lp.GetName() == promProcessorName {
				name = lp.GetValue()
				break
			}
		}
		if name == "" {
			continue
		}

		var value float64
		switch {
		case m.Counter != nil:
			value = m.Counter.GetValue()
		case m.Gauge != nil:
			value = m.Gauge.GetValue()
		case m.Untyped != nil:
			value = m.Untyped.GetValue()
		default:
			continue
		}
		fn(name, value)
	}
}
