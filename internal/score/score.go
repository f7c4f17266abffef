package score

import (
	"context"
	"fmt"
	"strings"

	"github.com/streamwarden/streamwarden/internal/pipeline"
	"github.com/streamwarden/streamwarden/internal/tier"
)

// Point weights for the expensive operator classes. A stage contributes each
// weight at most once, however often the construct appears within it.
const (
	weightFunction = 40 // custom-function execution
	weightWindow   = 30 // stateful windowing
	weightFacet    = 25 // fan-out / facet
	weightLookup   = 20 // join / lookup
	weightGroup    = 15 // grouping
	weightSort     = 10 // sorting
	weightBroker   = 15 // message-broker integration
)

// Each parallelism unit above 1 costs five complexity points.
const parallelismPointFactor = 5

// Complexity-score thresholds mapped to the tier table, highest first.
const (
	complexityVeryHigh = 80
	complexityHigh     = 50
	complexityModerate = 25
	complexitySimple   = 10
)

// Factor is one attributed complexity contribution.
// Stage is 1-indexed; 0 marks a pipeline-wide factor.
type Factor struct {
	Stage  int    `json:"stage,omitempty"`
	Kind   string `json:"kind"`
	Points int    `json:"points"`
	Detail string `json:"detail"`
}

// Reasoning explains which of the two tier requirements won.
type Reasoning struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Final     string `json:"final_decision"`
}

// Result is the full output of a scoring pass.
type Result struct {
	ComplexityScore    int       `json:"complexity_score"`
	TotalParallelism   int       `json:"total_parallelism"`
	PipelineStages     int       `json:"pipeline_stages"`
	ConnectionsCount   int       `json:"connections_count"`
	ComplexityTier     tier.Tier `json:"complexity_tier"`
	ParallelismTier    tier.Tier `json:"parallelism_tier"`
	RecommendedTier    tier.Tier `json:"recommended_tier"`
	Factors            []Factor  `json:"complexity_factors"`
	ParallelismDetails []string  `json:"parallelism_details"`
	Reasoning          Reasoning `json:"reasoning"`

	// Note is set when the pipeline could not be analysed and the result is
	// the safe default.
	Note string `json:"note,omitempty"`
}

// Loader locates a pipeline definition by identifier. Implemented by the
// control-plane client and the file loader.
type Loader interface {
	Load(ctx context.Context, id string) (*pipeline.Definition, error)
}

// ScoreNamed loads a pipeline through l and scores it. Any load failure —
// not found, unreadable, malformed — yields the default tier with an
// explanatory note instead of an error.
func ScoreNamed(ctx context.Context, l Loader, id string) Result {
	def, err := l.Load(ctx, id)
	if err != nil {
		return Result{
			RecommendedTier: tier.Default,
			ComplexityTier:  tier.Default,
			ParallelismTier: tier.Default,
			Note:            fmt.Sprintf("pipeline %q could not be analysed (%v); using default tier", id, err),
			Reasoning: Reasoning{
				Primary: "Default fallback for missing pipeline",
				Final:   fmt.Sprintf("Selected %s as the safe default", tier.Default),
			},
		}
	}
	return Score(def.Pipeline)
}

// Score walks p and computes the complexity score, the parallelism total,
// and the recommended tier. It is pure, side-effect-free, and safe to call
// concurrently for independent pipelines.
func Score(p pipeline.Pipeline) Result {
	var res Result
	res.PipelineStages = len(p)

	for i, stage := range p {
		pos := i + 1
		serialized := stage.Serialized()

		if strings.Contains(serialized, "$function") {
			res.addFactor(pos, "function", weightFunction, "custom function execution")
		}
		if stage.HasWindow() {
			res.addFactor(pos, "window", weightWindow, "window processing")
		}
		if stage.Has("$facet") {
			res.addFactor(pos, "facet", weightFacet, "facet operation")
		}
		if stage.Has("$lookup") {
			res.addFactor(pos, "lookup", weightLookup, "lookup/join operation")
		}
		if stage.Has("$group") {
			res.addFactor(pos, "group", weightGroup, "grouping operation")
		}
		if stage.Has("$sort") {
			res.addFactor(pos, "sort", weightSort, "sort operation")
		}

		if stage.HasSource() {
			res.ConnectionsCount++
		}
		if stage.Has("$merge") {
			res.ConnectionsCount++
		}

		for _, pv := range stage.ParallelismValues() {
			if pv.Value <= 1 {
				continue // parallelism of 1 (or less) contributes nothing
			}
			contribution := pv.Value - 1
			res.TotalParallelism += contribution
			res.ComplexityScore += pv.Value * parallelismPointFactor
			res.ParallelismDetails = append(res.ParallelismDetails,
				fmt.Sprintf("Stage %d (%s.%s): parallelism=%d (contributes %d)",
					pos, pv.Operator, pv.Path, pv.Value, contribution))
		}

		if strings.Contains(strings.ToLower(serialized), "kafka") {
			res.addFactor(pos, "broker", weightBroker, "message broker integration")
		}
	}

	// Pipeline-length factor: a single band, highest threshold first.
	switch n := len(p); {
	case n > 8:
		res.addFactor(0, "length", 20, fmt.Sprintf("pipeline length: %d stages", n))
	case n > 5:
		res.addFactor(0, "length", 10, fmt.Sprintf("pipeline length: %d stages", n))
	case n > 3:
		res.addFactor(0, "length", 5, fmt.Sprintf("pipeline length: %d stages", n))
	}

	// Connection-count factor, also a single band.
	switch {
	case res.ConnectionsCount > 4:
		res.addFactor(0, "connections", 15, fmt.Sprintf("connection count: %d", res.ConnectionsCount))
	case res.ConnectionsCount > 2:
		res.addFactor(0, "connections", 10, fmt.Sprintf("connection count: %d", res.ConnectionsCount))
	}

	var complexityReason string
	res.ComplexityTier, complexityReason = tierForComplexity(res.ComplexityScore)
	res.ParallelismTier = tierForParallelism(res.TotalParallelism)

	res.RecommendedTier = tier.Max(res.ComplexityTier, res.ParallelismTier)
	res.Reasoning = buildReasoning(res, complexityReason)
	return res
}

func (r *Result) addFactor(stage int, kind string, points int, detail string) {
	r.ComplexityScore += points
	if stage > 0 {
		detail = fmt.Sprintf("Stage %d: %s", stage, detail)
	}
	r.Factors = append(r.Factors, Factor{
		Stage:  stage,
		Kind:   kind,
		Points: points,
		Detail: fmt.Sprintf("%s (+%d complexity)", detail, points),
	})
}

// tierForComplexity maps a complexity score to a tier by descending threshold.
func tierForComplexity(score int) (tier.Tier, string) {
	switch {
	case score >= complexityVeryHigh:
		return tier.SP50, "Very complex pipeline (80+ complexity points)"
	case score >= complexityHigh:
		return tier.SP30, "Complex pipeline (50+ complexity points)"
	case score >= complexityModerate:
		return tier.SP10, "Moderate complexity (25+ complexity points)"
	case score >= complexitySimple:
		return tier.SP5, "Simple pipeline (10+ complexity points)"
	default:
		return tier.SP2, "Very simple pipeline (<10 complexity points)"
	}
}

// tierForParallelism maps the parallelism total to the minimum tier able to
// run it. The >1 band must be checked before the ==1 band; they are adjacent,
// not overlapping.
func tierForParallelism(total int) tier.Tier {
	switch {
	case total > 48:
		return tier.SP50
	case total > 8:
		return tier.SP30
	case total > 1:
		return tier.SP10
	case total == 1:
		return tier.SP5
	default:
		return tier.SP2
	}
}

// buildReasoning records which of the two tier requirements was decisive.
// Complexity wins ties: complexity_index >= parallelism_index.
func buildReasoning(res Result, complexityReason string) Reasoning {
	if tier.Index(res.ComplexityTier) >= tier.Index(res.ParallelismTier) {
		return Reasoning{
			Primary: fmt.Sprintf("Complexity-driven: %s", complexityReason),
			Secondary: fmt.Sprintf("Parallelism requirement: %s (total parallelism: %d)",
				res.ParallelismTier, res.TotalParallelism),
			Final: fmt.Sprintf("Selected %s as the higher requirement", res.RecommendedTier),
		}
	}
	return Reasoning{
		Primary: fmt.Sprintf("Parallelism-driven: %s required for %d total parallelism",
			res.ParallelismTier, res.TotalParallelism),
		Secondary: fmt.Sprintf("Complexity score: %d (suggests %s)",
			res.ComplexityScore, res.ComplexityTier),
		Final: fmt.Sprintf("Selected %s as the higher requirement", res.RecommendedTier),
	}
}
