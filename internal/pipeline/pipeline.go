package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Stage is one pipeline stage: a mapping from operator names to that
// operator's configuration. A stage normally holds exactly one operator key;
// the model tolerates more because the wire format does.
type Stage map[string]any

// Pipeline is an ordered sequence of stages. Order is semantically
// significant: the first stage must be a source, outputs come later.
type Pipeline []Stage

// DLQConfig is the dead-letter-queue target from a definition's options.
type DLQConfig struct {
	ConnectionName string `json:"connectionName"`
	DB             string `json:"db"`
	Coll           string `json:"coll"`
}

// Options holds the non-pipeline parts of a processor definition.
type Options struct {
	DLQ *DLQConfig `json:"dlq,omitempty"`
}

// Definition is a named pipeline as stored on disk or in the control plane.
type Definition struct {
	Name     string   `json:"name"`
	Pipeline Pipeline `json:"pipeline"`
	Options  *Options `json:"options,omitempty"`
}

// Decode parses a JSON processor definition from r.
func Decode(r io.Reader) (*Definition, error) {
	var def Definition
	dec := json.NewDecoder(r)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("pipeline: decode definition: %w", err)
	}
	return &def, nil
}

// DecodeFile parses the JSON processor definition at path.
func DecodeFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open definition: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Operators returns the stage's operator keys. Map iteration order applies;
// callers that need determinism must sort.
func (s Stage) Operators() []string {
	ops := make([]string, 0, len(s))
	for op := range s {
		ops = append(ops, op)
	}
	return ops
}

// Config returns the configuration object for the given operator, or nil if
// the operator is absent or its value is not an object (e.g. "$emit": true).
func (s Stage) Config(op string) map[string]any {
	cfg, _ := s[op].(map[string]any)
	return cfg
}

// Has reports whether the stage contains the given operator key.
func (s Stage) Has(op string) bool {
	_, ok := s[op]
	return ok
}

// HasAny reports whether the stage contains any operator from the given set.
func (s Stage) HasAny(ops map[string]struct{}) bool {
	for op := range s {
		if _, ok := ops[op]; ok {
			return true
		}
	}
	return false
}

// Serialized returns the stage's canonical JSON form. Used for the
// substring-based checks the scorer applies to expression-level content
// (custom functions, broker hostnames) that never appears as an operator key.
func (s Stage) Serialized() string {
	b, err := json.Marshal(s)
	if err != nil {
		// Stages come from json.Unmarshal, so this cannot fail in practice.
		return ""
	}
	return string(b)
}

// ParallelismValue is one extracted parallelism setting, attributed to the
// operator and sub-path it was found under.
type ParallelismValue struct {
	Operator string // operator key the value was found under
	Path     string // "parallelism" or "into.parallelism"
	Value    int
}

// ParallelismValues extracts every parallelism setting from the stage's
// known configuration paths: the top level of each operator's configuration,
// and one level down inside an "into" sub-object (merge-style outputs).
// Each addressed path is explicit; no other nesting levels are consulted.
func (s Stage) ParallelismValues() []ParallelismValue {
	var out []ParallelismValue
	for op, raw := range s {
		cfg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := numericField(cfg, "parallelism"); ok {
			out = append(out, ParallelismValue{Operator: op, Path: "parallelism", Value: v})
		}
		if into, ok := cfg["into"].(map[string]any); ok {
			if v, ok := numericField(into, "parallelism"); ok {
				out = append(out, ParallelismValue{Operator: op, Path: "into.parallelism", Value: v})
			}
		}
	}
	return out
}

// numericField reads key from cfg as an integer. JSON numbers decode as
// float64; values with a fractional part are truncated like the upstream
// service does.
func numericField(cfg map[string]any, key string) (int, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}
