// Package cost estimates the USD cost of LLM usage from token counts.
package cost

import "math"

// perThousandUSD maps a model name to its USD price per 1000 tokens. Models
// not listed fall back to DefaultPerThousandUSD.
var perThousandUSD = map[string]float64{
	"gpt-4o-mini":      0.0003,
	"gpt-4o":           0.01,
	"gemini-2.5-flash": 0.0005,
}

// DefaultPerThousandUSD is the price assumed for unknown models.
const DefaultPerThousandUSD = 0.002

// Estimate returns the estimated USD cost for totalTokens tokens of the given
// model, rounded to 4 decimal places.
func Estimate(model string, totalTokens int) float64 {
	per1k, ok := perThousandUSD[model]
	if !ok {
		per1k = DefaultPerThousandUSD
	}
	raw := float64(totalTokens) / 1000 * per1k
	return math.Round(raw*10000) / 10000
}
