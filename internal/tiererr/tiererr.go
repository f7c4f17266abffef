package tiererr

import (
	"regexp"
	"strconv"

	"github.com/streamwarden/streamwarden/internal/tier"
)

var (
	// minTierRe matches the explicit tier requirement phrase, e.g.
	// "Minimum tier for this workload: SP30 or larger".
	minTierRe = regexp.MustCompile(`Minimum tier for this workload: (SP\d+)`)

	// requestedRe matches the requested-parallelism figure in capacity
	// rejections, e.g. "Parallelism limit exceeded. Requested: 12".
	requestedRe = regexp.MustCompile(`Requested: (\d+)`)
)

// Parse extracts a suggested minimum tier from a rejection message.
// The explicit tier phrase wins; failing that, the requested parallelism is
// mapped through fixed bands. The second return value is false when neither
// pattern matches — callers must not retry in that case. Parse never panics;
// any input, including garbage, yields a clean no-suggestion result.
func Parse(text string) (tier.Tier, bool) {
	if m := minTierRe.FindStringSubmatch(text); m != nil {
		if t, ok := tier.Parse(m[1]); ok {
			return t, true
		}
		// A tier name outside the table is still the service's verbatim
		// suggestion; pass it through.
		return tier.Tier(m[1]), true
	}

	if m := requestedRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", false
		}
		switch {
		case n > 8:
			return tier.SP50, true
		case n > 4:
			return tier.SP30, true
		case n > 2:
			return tier.SP10, true
		default:
			return tier.SP5, true
		}
	}

	return "", false
}
