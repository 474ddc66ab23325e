package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"guardrail-hq/saturn/pkg/classify"
	"guardrail-hq/saturn/pkg/refusal"
)

// Template catalog for the constrained-response path. Unknown categories
// fall back to general.
var templateTexts = map[string]string{
	"general":    "Here's what I can tell you safely: %s",
	"pii_notice": "A possible personal-data disclosure was detected, so only a constrained answer is available. %s",
	"academic":   "Based on public sources: %s",
}

const templateFailure = "Request blocked by policy: template safety verification failed"

// forbiddenOutput are patterns that must never appear in rendered output.
// A rendered template matching any of them is replaced with a refusal.
var forbiddenOutput = []*regexp.Regexp{
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*[A-Za-z0-9_\-]{12,}`),
	regexp.MustCompile(`(?i)secret\s*[:=]`),
	regexp.MustCompile(`/etc/passwd`),
}

// renderTemplate produces the constrained response for a template decision.
// The echo slot passes through redaction before insertion, and the rendered
// result is re-checked against the forbidden patterns as a final barrier.
func renderTemplate(category string, level classify.Level, echo string) string {
	tmpl, ok := templateTexts[category]
	if !ok {
		tmpl = templateTexts["general"]
	}

	var content string
	if level.AtLeast(classify.LevelHigh) {
		content = "Your request triggers high-risk policy. Providing only minimal, general guidance."
	} else {
		content = "Your request triggers template-only mode. Providing high-level information."
	}
	if echo != "" {
		content += " " + echo
	}

	rendered := fmt.Sprintf(tmpl, content)
	for _, re := range forbiddenOutput {
		if re.MatchString(rendered) {
			return templateFailure
		}
	}
	return rendered
}

// safePromptEcho reduces untrusted input to a short, redacted, single-line
// description suitable for insertion into a template slot.
func safePromptEcho(input string, maxLen int) string {
	s := strings.TrimSpace(strings.ReplaceAll(input, "\n", " "))
	s = refusal.RedactText(s)
	if len(s) > maxLen {
		s = s[:maxLen-3] + "..."
	}
	return "request about: " + s
}

// safeSummary drafts the allow-path response. Even low-risk output stays
// summarized; raw input never flows through unmodified.
func safeSummary(input, scope string, maxLen int) string {
	topic := strings.TrimSpace(input)
	if i := strings.IndexByte(topic, '\n'); i >= 0 {
		topic = topic[:i]
	}
	topic = refusal.RedactText(topic)
	if len(topic) > maxLen {
		topic = topic[:maxLen-3] + "..."
	}
	return fmt.Sprintf("Based on public sources: summary for %q (scope=%s)", topic, scope)
}
