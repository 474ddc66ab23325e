package refusal

import "regexp"

// Redaction patterns for secret-shaped substrings. Applied to any context
// text before it can appear in refusal output or audit extras.
var redactPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\b(password|secret|token)\b\s*[:=]\s*\S+`), "[REDACTED_SECRET]"},
	{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b\d{4}-\d{4}-\d{4}-\d{4}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\b[A-Za-z0-9+/=]{40,}\b`), "[REDACTED_BLOB]"},
	{regexp.MustCompile(`\b[A-Za-z0-9_\-]{24,}\b`), "[REDACTED_TOKEN]"},
}

// RedactText masks token-shaped, email-shaped, card-number-shaped, and
// key=value-secret-shaped substrings.
func RedactText(text string) string {
	for _, p := range redactPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

const maxRedactDepth = 6

// RedactValue recursively redacts every string inside maps and slices.
// Nesting beyond a small depth collapses to a marker rather than recursing
// into adversarially deep structures.
func RedactValue(v any) any {
	return redactValue(v, 0)
}

func redactValue(v any, depth int) any {
	if depth > maxRedactDepth {
		return "[REDACTED_DEPTH]"
	}
	switch t := v.(type) {
	case string:
		return RedactText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = redactValue(val, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(val, depth+1)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = RedactText(s)
		}
		return out
	default:
		return v
	}
}
