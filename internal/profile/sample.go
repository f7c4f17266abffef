package profile

import (
	"fmt"
	"time"
)

// Sample is one timestamped observation of a running pipeline. Samples are
// immutable once recorded; the sampler appends them to a per-pipeline
// sequence that is only ever grown, never rewritten.
type Sample struct {
	Pipeline  string    `json:"pipeline"`
	Timestamp time.Time `json:"timestamp"`

	MemoryMB       float64 `json:"memory_mb"`
	InputCount     int64   `json:"input_count"`
	OutputCount    int64   `json:"output_count"`
	DLQCount       int64   `json:"dlq_count"`
	LatencyP50Ms   float64 `json:"latency_p50_ms"`
	LatencyP99Ms   float64 `json:"latency_p99_ms"`
	StateSizeBytes int64   `json:"state_size_bytes"`
	ScaleFactor    float64 `json:"scale_factor"`

	// ThroughputPerSec is derived at append time from the input-count delta
	// against the previous sample. Always 0 for the first sample of a run.
	ThroughputPerSec float64 `json:"throughput_per_sec"`

	// Err marks a failed fetch for this pipeline in this tick. Error-marker
	// samples carry no metric values and are excluded from aggregates.
	Err string `json:"error,omitempty"`
}

// Thresholds is the limit set evaluated against every fresh sample.
// Memory and latency are upper bounds, throughput is a lower bound.
// A zero value disables the corresponding rule.
type Thresholds struct {
	MemoryMB      float64 `yaml:"memory_mb" json:"memory_mb,omitempty"`
	LatencyP99Ms  float64 `yaml:"latency_p99_ms" json:"latency_p99_ms,omitempty"`
	ThroughputMin float64 `yaml:"throughput_min" json:"throughput_min,omitempty"`
}

// Enabled reports whether at least one threshold rule is configured.
func (t Thresholds) Enabled() bool {
	return t.MemoryMB > 0 || t.LatencyP99Ms > 0 || t.ThroughputMin > 0
}

// Check evaluates every configured threshold against s and returns one
// human-readable alert per violation. Error-marker samples raise no alerts.
func (t Thresholds) Check(s Sample) []string {
	if s.Err != "" {
		return nil
	}
	var alerts []string
	if t.MemoryMB > 0 && s.MemoryMB > t.MemoryMB {
		alerts = append(alerts, fmt.Sprintf("%s: High memory usage (%.1fMB > %.0fMB)",
			s.Pipeline, s.MemoryMB, t.MemoryMB))
	}
	if t.LatencyP99Ms > 0 && s.LatencyP99Ms > t.LatencyP99Ms {
		alerts = append(alerts, fmt.Sprintf("%s: High latency (%.1fms > %.0fms)",
			s.Pipeline, s.LatencyP99Ms, t.LatencyP99Ms))
	}
	if t.ThroughputMin > 0 && s.ThroughputPerSec < t.ThroughputMin {
		alerts = append(alerts, fmt.Sprintf("%s: Low throughput (%.1f/sec < %.0f/sec)",
			s.Pipeline, s.ThroughputPerSec, t.ThroughputMin))
	}
	return alerts
}
