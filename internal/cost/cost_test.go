package cost

import "testing"

func TestEstimate(t *testing.T) {
	cases := []struct {
		name   string
		model  string
		tokens int
		want   float64
	}{
		{"gpt-4o-mini small", "gpt-4o-mini", 1000, 0.0003},
		{"gpt-4o-mini rounds", "gpt-4o-mini", 1234, 0.0004},
		{"gpt-4o", "gpt-4o", 2500, 0.025},
		{"gemini", "gemini-2.5-flash", 10000, 0.005},
		{"unknown model", "claude-haiku", 1000, 0.002},
		{"zero tokens", "gpt-4o", 0, 0},
		{"tiny rounds down", "gpt-4o-mini", 100, 0},
	}
	for _, tc := range cases {
		if got := Estimate(tc.model, tc.tokens); got != tc.want {
			t.Errorf("%s: Estimate(%q, %d) = %v, want %v", tc.name, tc.model, tc.tokens, got, tc.want)
		}
	}
}
