package profile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoPipelines is returned when a run is requested with nothing to watch.
var ErrNoPipelines = errors.New("profile: no pipelines to monitor")

// ErrBadInterval is returned when the sampling interval is not positive.
var ErrBadInterval = errors.New("profile: sampling interval must be positive")

// MetricsSource supplies one fresh sample per pipeline per tick. Implemented
// by the control-plane client and the Prometheus stats source.
type MetricsSource interface {
	FetchSample(ctx context.Context, pipeline string) (Sample, error)
}

// AlertFunc receives each raised alert the moment its tick is evaluated.
// Alerts are never batched until run end.
type AlertFunc func(alert string)

// Analysis is the aggregate result of one profiling run.
type Analysis struct {
	RunID           string                    `json:"run_id"`
	StartedAt       time.Time                 `json:"start_time"`
	EndedAt         time.Time                 `json:"end_time"`
	DurationSeconds float64                   `json:"duration_seconds"`
	SampleCount     int                       `json:"sample_count"`
	IntervalSeconds float64                   `json:"interval_seconds"`
	Pipelines       map[string]*PipelineStats `json:"pipelines"`
	Alerts          []string                  `json:"alerts"`
}

// TickView is a read-only snapshot of the most recent tick, consumed by
// live displays while the run is still in progress.
type TickView struct {
	Tick      int       `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
	Samples   []Sample  `json:"samples"`
	Alerts    []string  `json:"alerts"`
}

// Sampler owns a profiling run's state: one append-only sample sequence per
// monitored pipeline plus the accumulated alerts. The sampler is the only
// writer; concurrent readers (LatestTick, Series) see a consistent,
// growing view.
type Sampler struct {
	src     MetricsSource
	alertFn AlertFunc
	now     func() time.Time // injectable for deterministic tests
	sleep   func(ctx context.Context, d time.Duration) bool

	mu       sync.RWMutex
	series   map[string][]Sample
	alerts   []string
	lastTick TickView
}

// NewSampler creates a Sampler reading from src. alertFn may be nil when the
// caller only wants alerts in the final analysis.
func NewSampler(src MetricsSource, alertFn AlertFunc) *Sampler {
	return &Sampler{
		src:     src,
		alertFn: alertFn,
		now:     time.Now,
		sleep:   sleepCtx,
		series:  make(map[string][]Sample),
	}
}

// Run executes the sampling loop. A zero duration means an unbounded run
// that only cancellation ends. Cancellation — during the sleep phase or the
// fetch phase — lets the current tick finish its bookkeeping, then returns
// the analysis computed so far; Run never returns a partial or corrupt
// aggregate, and never returns an error once the loop has started.
func (s *Sampler) Run(ctx context.Context, names []string, interval, duration time.Duration, th Thresholds) (*Analysis, error) {
	if len(names) == 0 {
		return nil, ErrNoPipelines
	}
	if interval <= 0 {
		return nil, ErrBadInterval
	}

	start := s.now()
	tick := 0
	for {
		tickStart := s.now()
		s.collectTick(ctx, tick, names, interval, th)
		tick++

		// The deadline check runs after collecting, so a bounded run of N
		// intervals records N+1 ticks: one at the start and a closing one
		// at or just past the deadline.
		if duration > 0 && s.now().Sub(start) >= duration {
			break
		}
		if ctx.Err() != nil {
			break
		}

		// Sleep the remainder of the interval; a slow tick sleeps nothing.
		wait := interval - s.now().Sub(tickStart)
		if wait < 0 {
			wait = 0
		}
		if !s.sleep(ctx, wait) {
			break
		}
	}

	end := s.now()
	return s.analyze(start, end, tick, interval), nil
}

// collectTick fetches one sample per pipeline (in parallel), derives
// throughput, appends to each series, and evaluates thresholds. Individual
// fetch failures become error-marker samples; the tick always completes.
func (s *Sampler) collectTick(ctx context.Context, tick int, names []string, interval time.Duration, th Thresholds) {
	ts := s.now()

	fetched := make([]Sample, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sample, err := s.src.FetchSample(ctx, name)
			if err != nil {
				slog.Warn("profile: sample fetch failed", "pipeline", name, "err", err)
				fetched[i] = Sample{Pipeline: name, Timestamp: ts, Err: err.Error()}
				return
			}
			sample.Pipeline = name
			sample.Timestamp = ts
			fetched[i] = sample
		}(i, name)
	}
	wg.Wait()

	var tickAlerts []string

	s.mu.Lock()
	for i := range fetched {
		sample := fetched[i]
		if sample.Err == "" {
			sample.ThroughputPerSec = throughputOf(lastGood(s.series[sample.Pipeline]), sample, interval)
		}
		s.series[sample.Pipeline] = append(s.series[sample.Pipeline], sample)
		fetched[i] = sample

		tickAlerts = append(tickAlerts, th.Check(sample)...)
	}
	s.alerts = append(s.alerts, tickAlerts...)
	s.lastTick = TickView{Tick: tick + 1, Timestamp: ts, Samples: fetched, Alerts: tickAlerts}
	s.mu.Unlock()

	// Emit after releasing the lock; alert sinks may be slow.
	if s.alertFn != nil {
		for _, a := range tickAlerts {
			s.alertFn(a)
		}
	}
}

// analyze builds the final Analysis from the accumulated series.
func (s *Sampler) analyze(start, end time.Time, ticks int, interval time.Duration) *Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &Analysis{
		RunID:           uuid.NewString(),
		StartedAt:       start,
		EndedAt:         end,
		DurationSeconds: end.Sub(start).Seconds(),
		SampleCount:     ticks,
		IntervalSeconds: interval.Seconds(),
		Pipelines:       make(map[string]*PipelineStats, len(s.series)),
		Alerts:          append([]string(nil), s.alerts...),
	}
	for name, samples := range s.series {
		out.Pipelines[name] = analyzeSeries(samples)
	}
	return out
}

// LatestTick returns a copy of the most recent tick's view. Safe to call
// concurrently with a running loop.
func (s *Sampler) LatestTick() TickView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := s.lastTick
	view.Samples = append([]Sample(nil), s.lastTick.Samples...)
	view.Alerts = append([]string(nil), s.lastTick.Alerts...)
	return view
}

// Series returns a snapshot of one pipeline's sample sequence. The sequence
// is append-only; callers may hold the returned slice while the run grows.
func (s *Sampler) Series(pipeline string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Sample(nil), s.series[pipeline]...)
}

// lastGood returns the most recent non-error sample in samples, or nil.
func lastGood(samples []Sample) *Sample {
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Err == "" {
			return &samples[i]
		}
	}
	return nil
}

// sleepCtx waits for d or for ctx cancellation, whichever comes first.
// Returns false when the wait was cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		// Still honour a pending cancellation before the next tick.
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
