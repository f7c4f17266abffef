// Package profile implements the live profiling engine.
//
// sample.go defines the per-tick observation model and the threshold set.
// sampler.go drives the sampling loop: once per interval it pulls one sample
// per monitored pipeline from a MetricsSource (parallel fetches within a
// tick, strictly sequential tick boundaries), evaluates thresholds, and
// emits alerts immediately. analyzer.go derives throughput from input-count
// deltas and computes per-metric aggregates and trend direction when the run
// ends. recommend.go maps the aggregates to qualitative tuning advice.
//
// A per-pipeline failure inside a tick is recorded as an error-marker sample
// and never aborts the tick; only cancellation ends a run early, and a
// cancelled run still returns the aggregate analysis computed so far.
package profile
