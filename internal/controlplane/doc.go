// Package controlplane talks to the managed stream-processing service.
//
// Client wraps the HTTP/JSON control-plane API: processor lifecycle
// (create, start, stop, delete), connection listing, and the per-processor
// stats endpoint the profiler samples from. FileLoader and ChainLoader
// resolve pipeline definitions locally before falling back to the API.
// PromStats is the alternative metrics source for self-hosted deployments
// that expose processor stats as a Prometheus exposition.
package controlplane
