package patterns

// Severity classifies how serious a rule hit is on its own.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// MatcherKind selects which engine a rule is compiled into.
type MatcherKind string

const (
	// KindLiteral rules are exact substrings matched by the automaton.
	KindLiteral MatcherKind = "literal"
	// KindRegex rules are structured patterns matched by the regex engine.
	KindRegex MatcherKind = "regex"
)

// Engine identifies which matcher produced a Match.
type Engine string

const (
	// EngineAutomaton marks hits from the Aho-Corasick pass.
	EngineAutomaton Engine = "automaton"
	// EngineRegex marks hits from the regex pass. Regex spans are exact and
	// win deduplication over automaton spans.
	EngineRegex Engine = "regex"
)

// Rule is a single attack pattern. Rules are immutable once loaded and are
// identified by an ID unique within the loaded rule set.
type Rule struct {
	// ID is a stable identifier, unique within a rule set.
	ID string `yaml:"id" json:"id"`

	// Category groups related rules (e.g. "instruction_injection").
	Category string `yaml:"category" json:"category"`

	// Kind selects the matching engine.
	Kind MatcherKind `yaml:"kind" json:"kind"`

	// Expression is the literal substring or regular expression.
	Expression string `yaml:"expression" json:"expression"`

	// Severity is the standalone seriousness of a hit.
	Severity Severity `yaml:"severity" json:"severity"`

	// Weight is the rule's contribution to the aggregate pressure score.
	// Must be >= 0.
	Weight float64 `yaml:"weight" json:"weight"`
}

// Match is a single rule hit against an input text.
type Match struct {
	RuleID   string   `json:"rule_id"`
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Weight   float64  `json:"weight"`

	// Start and End are byte offsets into the scanned input, half-open.
	Start int `json:"start"`
	End   int `json:"end"`

	// Text is the matched input slice.
	Text string `json:"text"`

	// Engine identifies which pass produced this match.
	Engine Engine `json:"engine"`
}

// Span returns the half-open byte span of the match.
func (m Match) Span() (start, end int) {
	return m.Start, m.End
}
