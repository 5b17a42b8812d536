package llm

import (
	"math"
	"testing"
)

func TestResolveModel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"haiku", "claude-3-5-haiku-latest"},
		{"Sonnet", "claude-sonnet-4-5"},
		{" opus ", "claude-opus-4-1"},
		{"claude-sonnet-4-5", "claude-sonnet-4-5"},
		{"custom-model", "custom-model"},
	}
	for _, tt := range tests {
		if got := ResolveModel(tt.in); got != tt.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		model string
		in    int
		out   int
		want  float64
	}{
		{"claude-opus-4-1", 1_000_000, 0, 15.0},
		{"claude-opus-4-1", 0, 1_000_000, 75.0},
		{"claude-sonnet-4-5", 1_000_000, 1_000_000, 18.0},
		{"claude-3-5-haiku-latest", 1_000_000, 0, 0.25},
		{"unknown-model", 1_000_000, 1_000_000, 1.5}, // prices as haiku, the cheapest tier
	}
	for _, tt := range tests {
		got := EstimateCost(tt.model, tt.in, tt.out)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("EstimateCost(%q, %d, %d) = %v, want %v", tt.model, tt.in, tt.out, got, tt.want)
		}
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading whitespace", "  ```json\n{}\n```  ", `{}`},
		{"no trailing fence", "```json\n{\"a\": 1}", `{"a": 1}`},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("%s: StripFences = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestStripFencesKeepsInteriorFences(t *testing.T) {
	in := "# Title\n\nProse with a snippet:\n\n```go\nfunc main() {}\n```\n\nMore prose."
	if got := StripFences(in); got != in {
		t.Errorf("interior fences mangled: %q", got)
	}
}

func TestNewCLIClientMissingBinary(t *testing.T) {
	_, err := NewCLIClient("definitely-not-a-real-binary-xyz", "sonnet", 0)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}
