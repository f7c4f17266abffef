// Package pipeline defines the in-memory model of a stream-processing
// pipeline: an ordered list of stages, each mapping operator names to their
// configuration. It owns the recognized-operator vocabulary, the operator
// class tables used by the scorer, and the typed traversal helpers that
// extract numeric fields (parallelism) from the known configuration paths.
//
// Decode/DecodeFile parse the on-disk JSON definition format:
//
//	{"name": "...", "pipeline": [{"$source": {...}}, ...], "options": {"dlq": {...}}}
package pipeline
