// Package tiererr extracts a minimum-tier hint from the free-text rejection
// the control plane returns when a pipeline is started on an insufficient
// tier. The upstream service reports this constraint as prose, not
// structured data, so parsing lives behind this narrow boundary where it can
// be replaced without touching the scorer.
package tiererr
