package tier

// Tier is one capacity class of the managed execution service.
type Tier string

// The five tiers, smallest capacity first.
const (
	SP2  Tier = "SP2"
	SP5  Tier = "SP5"
	SP10 Tier = "SP10"
	SP30 Tier = "SP30"
	SP50 Tier = "SP50"
)

// Table is the ordered tier table. Index position defines capacity ordering.
var Table = []Tier{SP2, SP5, SP10, SP30, SP50}

// Default is the safe fallback tier used when a pipeline cannot be analysed.
// It sits in the middle of the table: large enough for most workloads,
// small enough not to waste capacity.
const Default = SP10

// Index returns the tier's position in the table, or -1 for an unknown tier.
func Index(t Tier) int {
	for i, v := range Table {
		if v == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is a member of the tier table.
func Valid(t Tier) bool {
	return Index(t) >= 0
}

// Parse converts a tier name to a Tier. The second return value is false
// when the name is not in the table.
func Parse(s string) (Tier, bool) {
	t := Tier(s)
	return t, Valid(t)
}

// Less reports whether a has strictly less capacity than b.
// Unknown tiers compare below every known tier.
func Less(a, b Tier) bool {
	return Index(a) < Index(b)
}

// Max returns whichever of a or b has the higher table index.
func Max(a, b Tier) Tier {
	if Index(a) >= Index(b) {
		return a
	}
	return b
}
