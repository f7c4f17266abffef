package tiererr

import (
	"strings"
	"testing"

	"github.com/streamwarden/streamwarden/internal/tier"
)

func TestParse_ExplicitTierPhrase(t *testing.T) {
	got, ok := Parse(`{"detail": "Processor requires more capacity. Minimum tier for this workload: SP30 or larger."}`)
	if !ok {
		t.Fatal("expected a suggestion")
	}
	if got != tier.SP30 {
		t.Errorf("Parse = %s, want SP30", got)
	}
}

func TestParse_RequestedParallelismBands(t *testing.T) {
	tests := []struct {
		requested string
		want      tier.Tier
	}{
		{"1", tier.SP5},
		{"2", tier.SP5},
		{"3", tier.SP10},
		{"4", tier.SP10},
		{"5", tier.SP30},
		{"8", tier.SP30},
		{"9", tier.SP50},
		{"64", tier.SP50},
	}
	for _, tc := range tests {
		text := "Parallelism limit exceeded for tier. Requested: " + tc.requested
		got, ok := Parse(text)
		if !ok {
			t.Fatalf("Requested: %s — expected a suggestion", tc.requested)
		}
		if got != tc.want {
			t.Errorf("Requested: %s → %s, want %s", tc.requested, got, tc.want)
		}
	}
}

func TestParse_ExplicitPhraseWinsOverParallelism(t *testing.T) {
	text := "Minimum tier for this workload: SP10 or larger. Requested: 64"
	got, ok := Parse(text)
	if !ok || got != tier.SP10 {
		t.Errorf("Parse = %s, %v; want SP10 (explicit phrase wins)", got, ok)
	}
}

func TestParse_NoRecognizablePattern(t *testing.T) {
	inputs := []string{
		"",
		"internal server error",
		"tier too small, be bigger",
		strings.Repeat("x", 10000),
	}
	for _, in := range inputs {
		if got, ok := Parse(in); ok {
			t.Errorf("Parse(%.20q) = %s, want no suggestion", in, got)
		}
	}
}
