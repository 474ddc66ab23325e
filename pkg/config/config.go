// Package config defines the gate's configuration surface and YAML loading.
//
// All settings are injected at construction time; no component reaches into
// a global store. A load failure falls back to built-in conservative
// defaults rather than failing startup: the gate must always be able to
// classify and block, even with zero external configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"guardrail-hq/saturn/pkg/classify"
	"guardrail-hq/saturn/pkg/governor"
	"guardrail-hq/saturn/pkg/patterns"
	"guardrail-hq/saturn/pkg/route"
)

// RuleGroup declares one category of patterns with shared severity and
// weight, matching the rule-file layout.
type RuleGroup struct {
	Category string   `yaml:"category"`
	Severity string   `yaml:"severity"`
	Weight   float64  `yaml:"weight"`
	Kind     string   `yaml:"kind,omitempty"` // "literal" or "regex"; auto-detected when empty
	Patterns []string `yaml:"patterns"`
}

// ClassifierConfig tunes pressure aggregation.
type ClassifierConfig struct {
	Thresholds   classify.Thresholds `yaml:"thresholds"`
	SaturationK  float64             `yaml:"saturation_k"`
	IntentBonus  float64             `yaml:"intent_bonus"`
	ContextBonus float64             `yaml:"context_bonus"`
	HistoryTurns int                 `yaml:"history_turns"`
}

// LedgerConfig locates the audit chain and its optional mirrors.
type LedgerConfig struct {
	Path           string `yaml:"path"`
	IndexPath      string `yaml:"index_path,omitempty"`
	VerifySchedule string `yaml:"verify_schedule,omitempty"`
}

// MetricsConfig controls the prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the full configuration surface consumed by the pipeline.
type Config struct {
	Rules      []RuleGroup      `yaml:"rules"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Governor   governor.Config  `yaml:"governor"`
	Router     route.Policy     `yaml:"router"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// JournalPath enables the budget spend journal when set.
	JournalPath string `yaml:"journal_path,omitempty"`

	// WatchRules enables hot reload of the rule file.
	WatchRules bool `yaml:"watch_rules"`
}

// Default returns the built-in conservative configuration.
func Default() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			Thresholds:   classify.DefaultThresholds(),
			SaturationK:  0.9,
			IntentBonus:  0.20,
			ContextBonus: 0.10,
			HistoryTurns: 5,
		},
		Governor: governor.DefaultConfig(),
		Router:   route.DefaultPolicy(),
		Ledger: LedgerConfig{
			Path: "saturn_audit.jsonl",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9310",
		},
	}
}

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when non-empty, falling back to Default on any
// failure. The failure is logged, never fatal.
func LoadOrDefault(path string) *Config {
	if path == "" {
		return Default()
	}
	cfg, err := Load(path)
	if err != nil {
		slog.Default().Warn("config load failed, using built-in defaults",
			"path", path,
			"error", err,
		)
		return Default()
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	t := c.Classifier.Thresholds
	if !(t.Low <= t.Medium && t.Medium <= t.High && t.High <= t.Critical) {
		return fmt.Errorf("thresholds must be ascending: %+v", t)
	}
	if c.Governor.InitialBudget < 0 {
		return fmt.Errorf("initial_budget cannot be negative")
	}
	if c.Governor.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	if c.Governor.WindowSeconds < 0 {
		return fmt.Errorf("window_seconds cannot be negative")
	}
	for i, g := range c.Rules {
		if g.Category == "" {
			return fmt.Errorf("rules[%d]: category cannot be empty", i)
		}
		if g.Weight < 0 {
			return fmt.Errorf("rules[%d] (%s): weight cannot be negative", i, g.Category)
		}
	}
	return nil
}

// regex metacharacters: an expression without any is treated as a literal.
var reMetaChars = regexp.MustCompile(`[.^$*+?{}\[\]|()\\]`)

// CompileRules builds the pattern rule set from the configured groups, or
// the built-in defaults when no groups are configured.
func (c *Config) CompileRules() (*patterns.RuleSet, error) {
	if len(c.Rules) == 0 {
		return patterns.Compile(patterns.DefaultRules())
	}

	var rules []patterns.Rule
	for _, g := range c.Rules {
		severity := patterns.Severity(g.Severity)
		switch severity {
		case patterns.SeverityLow, patterns.SeverityMedium, patterns.SeverityHigh:
		case "":
			severity = patterns.SeverityMedium
		default:
			return nil, fmt.Errorf("rule group %q: unknown severity %q", g.Category, g.Severity)
		}

		weight := g.Weight
		if weight == 0 {
			weight = 0.75
		}

		for i, expr := range g.Patterns {
			kind := patterns.MatcherKind(g.Kind)
			if kind == "" {
				if reMetaChars.MatchString(expr) {
					kind = patterns.KindRegex
				} else {
					kind = patterns.KindLiteral
				}
			}
			rules = append(rules, patterns.Rule{
				ID:         fmt.Sprintf("%s__%d", g.Category, i),
				Category:   g.Category,
				Kind:       kind,
				Expression: expr,
				Severity:   severity,
				Weight:     weight,
			})
		}
	}

	return patterns.Compile(rules)
}

// ClassifierSettings converts the YAML block into classify.Config.
func (c *Config) ClassifierSettings() classify.Config {
	return classify.Config{
		Thresholds:   c.Classifier.Thresholds,
		SaturationK:  c.Classifier.SaturationK,
		IntentBonus:  c.Classifier.IntentBonus,
		ContextBonus: c.Classifier.ContextBonus,
		HistoryTurns: c.Classifier.HistoryTurns,
	}
}
