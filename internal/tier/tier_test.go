package tier

import "testing"

func TestIndexOrdering(t *testing.T) {
	// The table must be strictly ordered by index.
	for i := 1; i < len(Table); i++ {
		if Index(Table[i-1]) >= Index(Table[i]) {
			t.Errorf("table not ordered at %d: %s vs %s", i, Table[i-1], Table[i])
		}
	}
	if Index("SP999") != -1 {
		t.Errorf("Index(SP999) = %d, want -1", Index("SP999"))
	}
}

func TestLess_ByTablePosition(t *testing.T) {
	// SP5 < SP10 by capacity even though "SP5" > "SP10" lexically.
	if !Less(SP5, SP10) {
		t.Error("Less(SP5, SP10) = false, want true")
	}
	if Less(SP50, SP2) {
		t.Error("Less(SP50, SP2) = true, want false")
	}
	if !Less("bogus", SP2) {
		t.Error("unknown tiers should compare below every known tier")
	}
}

func TestMax(t *testing.T) {
	tests := []struct {
		a, b, want Tier
	}{
		{SP2, SP50, SP50},
		{SP50, SP2, SP50},
		{SP10, SP10, SP10},
		{SP30, SP5, SP30},
	}
	for _, tc := range tests {
		if got := Max(tc.a, tc.b); got != tc.want {
			t.Errorf("Max(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	if got, ok := Parse("SP30"); !ok || got != SP30 {
		t.Errorf("Parse(SP30) = %v, %v", got, ok)
	}
	if _, ok := Parse("M10"); ok {
		t.Error("Parse(M10) should not be valid")
	}
}
