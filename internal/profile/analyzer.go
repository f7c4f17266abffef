package profile

import "time"

// Trend classifications for a metric series.
const (
	TrendStable       = "stable"
	TrendIncreasing   = "increasing"
	TrendDecreasing   = "decreasing"
	TrendInsufficient = "insufficient_data"
)

// trendChangePct is the relative-change cutoff separating "stable" from a
// directional trend.
const trendChangePct = 5.0

// MetricStats is the aggregate view of one metric across a run.
type MetricStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Trend string  `json:"trend"`
}

// PipelineStats is the per-pipeline aggregate handed to the recommender.
type PipelineStats struct {
	Samples       int `json:"samples"`
	FailedSamples int `json:"failed_samples,omitempty"`

	MemoryMB         MetricStats `json:"memory_mb"`
	LatencyP50Ms     MetricStats `json:"latency_p50_ms"`
	LatencyP99Ms     MetricStats `json:"latency_p99_ms"`
	ThroughputPerSec MetricStats `json:"throughput_per_sec"`

	Recommendations []string `json:"recommendations"`
}

// throughputOf derives the instantaneous throughput of cur from the previous
// sample's input count. The first sample of a run has no delta and is
// defined as 0, as is any negative delta (counter reset).
func throughputOf(prev *Sample, cur Sample, interval time.Duration) float64 {
	if prev == nil || interval <= 0 {
		return 0
	}
	delta := float64(cur.InputCount - prev.InputCount)
	tp := delta / interval.Seconds()
	if tp < 0 {
		return 0
	}
	return tp
}

// analyzeSeries computes the aggregate stats for one pipeline's sample
// sequence. Error-marker samples are counted but excluded from every metric.
func analyzeSeries(samples []Sample) *PipelineStats {
	st := &PipelineStats{}

	var memory, p50, p99, throughput []float64
	for _, s := range samples {
		if s.Err != "" {
			st.FailedSamples++
			continue
		}
		st.Samples++
		memory = append(memory, s.MemoryMB)
		p50 = append(p50, s.LatencyP50Ms)
		p99 = append(p99, s.LatencyP99Ms)
		throughput = append(throughput, s.ThroughputPerSec)
	}

	st.MemoryMB = metricStats(memory)
	st.LatencyP50Ms = metricStats(p50)
	st.LatencyP99Ms = metricStats(p99)
	st.ThroughputPerSec = metricStats(throughput)
	st.Recommendations = Recommendations(st)
	return st
}

// metricStats aggregates one value series. An empty or all-zero series is
// reported as stable with zero aggregates so later consumers never divide
// by a zero average.
func metricStats(values []float64) MetricStats {
	allZero := true
	for _, v := range values {
		if v != 0 {
			allZero = false
			break
		}
	}
	if len(values) == 0 || allZero {
		return MetricStats{Trend: TrendStable}
	}

	out := MetricStats{Min: values[0], Max: values[0], Trend: trendOf(values)}
	var sum float64
	for _, v := range values {
		if v < out.Min {
			out.Min = v
		}
		if v > out.Max {
			out.Max = v
		}
		sum += v
	}
	out.Avg = sum / float64(len(values))
	return out
}

// trendOf classifies the direction of a series by comparing the first-half
// average against the second-half average. A relative change under 5% is
// stable; at least +5% is increasing; at most -5% is decreasing.
func trendOf(values []float64) string {
	if len(values) < 2 {
		return TrendInsufficient
	}

	half := len(values) / 2
	firstAvg := avg(values[:half])
	secondAvg := avg(values[half:])

	var changePct float64
	if firstAvg > 0 {
		changePct = (secondAvg - firstAvg) / firstAvg * 100
	}

	switch {
	case changePct >= trendChangePct:
		return TrendIncreasing
	case changePct <= -trendChangePct:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
