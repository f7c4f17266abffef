package validate

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/streamwarden/streamwarden/internal/pipeline"
)

// Mode selects the validation strictness level.
type Mode int

const (
	// Minimal reports a missing output stage as a warning. Used for quick
	// pre-flight checks during development.
	Minimal Mode = iota

	// Strict reports a missing output stage as an error. Used before
	// deployment.
	Strict
)

// namePattern is the advisory naming convention for pipeline names:
// lowercase letters, digits, underscores; no leading digit or underscore,
// no trailing underscore.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$`)

// Result is the outcome of one validation pass. Errors make the pipeline
// invalid; warnings and lint findings do not.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Lint     []string `json:"lint,omitempty"`
}

// Validate checks def against the structural rules using the given set of
// known connection names. declaredAs is the identifier the definition is
// stored under (its filename stem); pass "" to skip the name-match lint rule.
func Validate(def *pipeline.Definition, knownConnections []string, mode Mode, declaredAs string) Result {
	res := Result{Valid: true}
	known := make(map[string]struct{}, len(knownConnections))
	for _, c := range knownConnections {
		known[c] = struct{}{}
	}

	p := def.Pipeline

	if len(p) == 0 {
		res.addError("'pipeline' cannot be empty")
	}

	if len(p) > 0 && !p[0].HasSource() {
		res.addError("first pipeline stage must be '$source'")
	}

	hasOutput := false
	for _, stage := range p {
		if stage.HasOutput() {
			hasOutput = true
			break
		}
	}
	if !hasOutput && len(p) > 0 {
		msg := "no output stage found ($merge, $emit)"
		if mode == Strict {
			res.addError(msg)
		} else {
			res.Warnings = append(res.Warnings, msg)
		}
	}

	for i, stage := range p {
		pos := i + 1

		ops := stage.Operators()
		sort.Strings(ops)
		for _, op := range ops {
			if _, ok := pipeline.Vocabulary[op]; !ok {
				res.addError(fmt.Sprintf("invalid pipeline stage '%s' at position %d", op, pos))
			}
		}

		checkConnection := func(conn, where string) {
			if conn == "" {
				return
			}
			if _, ok := known[conn]; !ok {
				res.addError(fmt.Sprintf("unknown connection '%s' in %s at position %d; valid connections: %v",
					conn, where, pos, knownConnections))
			}
		}

		if cfg := stage.Config("$source"); cfg != nil {
			conn, _ := cfg["connectionName"].(string)
			checkConnection(conn, "$source")
		}

		if cfg := stage.Config("$merge"); cfg != nil {
			into, _ := cfg["into"].(map[string]any)
			if into == nil {
				res.addError(fmt.Sprintf("$merge stage at position %d missing 'into' field", pos))
			} else {
				conn, _ := into["connectionName"].(string)
				checkConnection(conn, "$merge into target")
				if conn != "" {
					if _, ok := into["db"].(string); !ok {
						res.addError(fmt.Sprintf("$merge 'into' missing 'db' field at position %d", pos))
					}
					if _, ok := into["coll"].(string); !ok {
						res.addError(fmt.Sprintf("$merge 'into' missing 'coll' field at position %d", pos))
					}
				}
			}
		}

		if cfg := stage.Config("$emit"); cfg != nil {
			conn, _ := cfg["connectionName"].(string)
			checkConnection(conn, "$emit")
		}
	}

	if def.Options != nil && def.Options.DLQ != nil {
		conn := def.Options.DLQ.ConnectionName
		if conn != "" {
			if _, ok := known[conn]; !ok {
				res.addError(fmt.Sprintf("unknown connection '%s' in DLQ options; valid connections: %v",
					conn, knownConnections))
			}
		}
	}

	res.Lint = lint(def, declaredAs)
	return res
}

func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// lint runs the advisory naming and hygiene rules. Findings are never
// validation failures.
func lint(def *pipeline.Definition, declaredAs string) []string {
	var out []string

	if declaredAs != "" && !namePattern.MatchString(declaredAs) {
		out = append(out, fmt.Sprintf("identifier '%s' should use lowercase letters, numbers, and underscores only", declaredAs))
	}
	if declaredAs != "" && def.Name != "" && def.Name != declaredAs {
		out = append(out, fmt.Sprintf("pipeline name '%s' does not match its identifier '%s'", def.Name, declaredAs))
	}
	if def.Options == nil || def.Options.DLQ == nil {
		out = append(out, "no DLQ configured; failed records will be discarded")
	}
	return out
}
