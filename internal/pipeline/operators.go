package pipeline

// Vocabulary is the fixed set of recognized stage operators. Any operator
// key outside this set is a structural validation error.
var Vocabulary = map[string]struct{}{
	"$source":         {},
	"$match":          {},
	"$project":        {},
	"$addFields":      {},
	"$group":          {},
	"$sort":           {},
	"$limit":          {},
	"$skip":           {},
	"$unwind":         {},
	"$lookup":         {},
	"$merge":          {},
	"$emit":           {},
	"$tumblingWindow": {},
	"$hoppingWindow":  {},
	"$sessionWindow":  {},
	"$https":          {},
	"$densify":        {},
	"$fill":           {},
	"$facet":          {},
	"$unionWith":      {},
}

// SourceOperators are the operators that read from an external connection.
var SourceOperators = map[string]struct{}{
	"$source": {},
}

// OutputOperators are the operators that write pipeline results out.
var OutputOperators = map[string]struct{}{
	"$merge": {},
	"$emit":  {},
}

// WindowOperators are the stateful windowing operators.
var WindowOperators = map[string]struct{}{
	"$tumblingWindow": {},
	"$hoppingWindow":  {},
	"$sessionWindow":  {},
}

// HasSource reports whether the stage contains a source operator.
func (s Stage) HasSource() bool { return s.HasAny(SourceOperators) }

// HasOutput reports whether the stage contains an output operator.
func (s Stage) HasOutput() bool { return s.HasAny(OutputOperators) }

// HasWindow reports whether the stage contains a windowing operator.
func (s Stage) HasWindow() bool { return s.HasAny(WindowOperators) }
