package classify

import (
	"fmt"
	"log/slog"
	"math"

	"guardrail-hq/saturn/pkg/patterns"
)

// Classification is the derived, immutable result of classifying one input.
// It is created fresh per request and never mutated after construction.
type Classification struct {
	// Pressure is the aggregate risk score in [0, 1].
	Pressure float64 `json:"pressure"`

	// Confidence is the classifier's certainty in the assigned band:
	// max(pressure, 1-pressure). A clean input scores 1.0; mid-band
	// pressure is where the heuristics are least certain.
	Confidence float64 `json:"confidence"`

	// RiskLevel is Pressure mapped through the configured thresholds.
	RiskLevel Level `json:"risk_level"`

	// Reasons is an ordered, human-readable trace of the aggregation terms
	// that fired. Never empty.
	Reasons []string `json:"reasons"`

	// Matches are the deduplicated pattern hits.
	Matches []patterns.Match `json:"matches"`

	// Intents are the semantic-intent families detected in the text.
	Intents []string `json:"intents"`

	// ContextFlags are anomalies detected over recent conversation history.
	ContextFlags []string `json:"context_flags"`
}

// MatchCount returns the number of matches in the given category.
func (c *Classification) MatchCount(category string) int {
	n := 0
	for _, m := range c.Matches {
		if m.Category == category {
			n++
		}
	}
	return n
}

// Config tunes pressure aggregation.
type Config struct {
	// Thresholds are the pressure boundaries for the four risk bands.
	Thresholds Thresholds

	// SaturationK is the k in base = 1 - exp(-k*S). Default 0.9.
	SaturationK float64

	// IntentBonus is added once if any suspicious intent family fires.
	// Default 0.20.
	IntentBonus float64

	// ContextBonus is added once if any context anomaly fires. Default 0.10.
	ContextBonus float64

	// HistoryTurns is how many trailing conversation turns the context
	// heuristic inspects. Default 5.
	HistoryTurns int
}

// DefaultConfig returns the standard aggregation tuning.
func DefaultConfig() Config {
	return Config{
		Thresholds:   DefaultThresholds(),
		SaturationK:  0.9,
		IntentBonus:  0.20,
		ContextBonus: 0.10,
		HistoryTurns: 5,
	}
}

// Classifier scores inbound text. It is stateless apart from its compiled
// rule set and safe for concurrent use.
type Classifier struct {
	rules  *patterns.RuleSet
	config Config
	logger *slog.Logger
}

// New creates a Classifier over the given compiled rule set. A nil rule set
// falls back to the built-in conservative defaults.
func New(rules *patterns.RuleSet, config Config) *Classifier {
	if rules == nil {
		rules = patterns.MustCompileDefaults()
	}
	if config.SaturationK <= 0 {
		config.SaturationK = 0.9
	}
	if config.IntentBonus <= 0 {
		config.IntentBonus = 0.20
	}
	if config.ContextBonus <= 0 {
		config.ContextBonus = 0.10
	}
	if config.HistoryTurns <= 0 {
		config.HistoryTurns = 5
	}
	if (config.Thresholds == Thresholds{}) {
		config.Thresholds = DefaultThresholds()
	}
	return &Classifier{
		rules:  rules,
		config: config,
		logger: slog.Default().With("component", "classify"),
	}
}

// Classify scores text given recent conversation history.
//
// Classify accepts any byte sequence, including invalid UTF-8, and does not
// panic; internal faults are the caller's to convert into a fail-closed
// decision.
func (c *Classifier) Classify(text string, history []string) *Classification {
	matches := c.rules.Scan(text)
	intents := detectIntents(text)
	flags := detectContextFlags(history, c.config.HistoryTurns)

	var sum float64
	for _, m := range matches {
		sum += m.Weight
	}

	var reasons []string
	if sum > 0 {
		reasons = append(reasons, fmt.Sprintf("%d pattern match(es) detected", len(matches)))
	}

	// Saturating aggregation: approaches but never reaches 1.0.
	pressure := 1.0 - math.Exp(-c.config.SaturationK*sum)

	if len(intents) > 0 {
		pressure += c.config.IntentBonus
		reasons = append(reasons, "suspicious semantic intent")
	}
	if len(flags) > 0 {
		pressure += c.config.ContextBonus
		reasons = append(reasons, "context anomaly")
	}

	pressure = clamp01(pressure)

	if len(reasons) == 0 {
		reasons = []string{"no risky pattern matched"}
	}

	return &Classification{
		Pressure:     pressure,
		Confidence:   math.Max(pressure, 1-pressure),
		RiskLevel:    c.config.Thresholds.Level(pressure),
		Reasons:      reasons,
		Matches:      matches,
		Intents:      intents,
		ContextFlags: flags,
	}
}

// Thresholds returns the configured pressure boundaries.
func (c *Classifier) Thresholds() Thresholds {
	return c.config.Thresholds
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
