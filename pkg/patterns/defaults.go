package patterns

import "fmt"

// builtinRules is the conservative fallback pattern database. It is used
// whenever no external rule configuration is available, so the gate can
// always classify and block.
var builtinRules = []struct {
	category   string
	expression string
	severity   Severity
	weight     float64
}{
	{"instruction_injection", `ignore\s+(all\s+)?(previous|prior|earlier)\s+(instructions?|prompts?|commands?)`, SeverityHigh, 0.95},
	{"credential_extraction", `(reveal|show|display|tell)\s+.{0,20}(secret|password|key|token|credential)s?`, SeverityHigh, 0.90},
	{"system_probing", `(what|how)\s+.{0,20}(are\s+you|were\s+you)\s+.{0,20}(trained|programmed|built)`, SeverityMedium, 0.85},
	{"jailbreak_attempts", `(bypass|circumvent|get\s+around|work\s+around)\s+.{0,20}(security|safety|restriction|filter|rule)`, SeverityHigh, 0.92},
	{"html_xml_injection", `<!--.*?(ignore|system|admin|override|inject).*?-->`, SeverityMedium, 0.80},
	{"data_exfiltration", `(list|show|enumerate|dump)\s+.{0,20}(all\s+)?(users?|files?|documents?|data)`, SeverityHigh, 0.85},

	// PII shapes feed the router's notice path, not the block path.
	{"pii_leak", `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`, SeverityMedium, 0.60},
	{"pii_leak", `\b\d{4}[\s\-]\d{4}[\s\-]\d{4}[\s\-]\d{4}\b`, SeverityMedium, 0.60},
	{"pii_leak", `\b\d{3}-\d{2}-\d{4}\b`, SeverityMedium, 0.60},
}

// DefaultRules returns the built-in rule set definitions. IDs follow the
// "category__index" convention used for config-loaded rules.
func DefaultRules() []Rule {
	perCategory := make(map[string]int)
	out := make([]Rule, 0, len(builtinRules))
	for _, b := range builtinRules {
		idx := perCategory[b.category]
		perCategory[b.category]++
		out = append(out, Rule{
			ID:         fmt.Sprintf("%s__%d", b.category, idx),
			Category:   b.category,
			Kind:       KindRegex,
			Expression: b.expression,
			Severity:   b.severity,
			Weight:     b.weight,
		})
	}
	return out
}

// MustCompileDefaults compiles the built-in rule set. The built-ins are
// covered by tests, so a compile failure here is a programming error.
func MustCompileDefaults() *RuleSet {
	rs, err := Compile(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("patterns: built-in rules failed to compile: %v", err))
	}
	return rs
}
