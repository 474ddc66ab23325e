package route

import (
	"math"

	"guardrail-hq/saturn/pkg/classify"
)

// Cost tunables. The function is deterministic so identical requests are
// charged identically.
const (
	// BaseCost is the charge for a short, confident, low-risk request.
	BaseCost = 0.10

	// MaxCost caps any single charge.
	MaxCost = 0.50

	longInputBytes      = 200
	longInputFactor     = 1.5
	lowConfidenceBound  = 0.8
	lowConfidenceFactor = 1.2
	mediumRiskFactor    = 1.1
)

// Cost computes the budget charge for a request. Long inputs and low
// classifier confidence cost more; medium-risk templated responses carry a
// small surcharge. The result is capped and rounded to 3 decimals.
func Cost(text string, c *classify.Classification) float64 {
	cost := BaseCost
	if len(text) > longInputBytes {
		cost *= longInputFactor
	}
	if c != nil {
		if c.Confidence < lowConfidenceBound {
			cost *= lowConfidenceFactor
		}
		if c.RiskLevel == classify.LevelMedium {
			cost *= mediumRiskFactor
		}
	}
	if cost > MaxCost {
		cost = MaxCost
	}
	return math.Round(cost*1000) / 1000
}
