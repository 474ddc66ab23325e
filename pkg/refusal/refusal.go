package refusal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Violation identifies why a request was refused.
type Violation string

const (
	ViolationInjectionDetected Violation = "injection_detected"
	ViolationBudgetExceeded    Violation = "budget_exceeded"
	ViolationSystemError       Violation = "system_error"
	ViolationScopeViolation    Violation = "scope_violation"
	ViolationRateLimited       Violation = "rate_limited"
	ViolationPolicyViolation   Violation = "policy_violation"
)

// knownViolations guards coercion of free-form violation strings.
var knownViolations = map[Violation]struct{}{
	ViolationInjectionDetected: {},
	ViolationBudgetExceeded:    {},
	ViolationSystemError:       {},
	ViolationScopeViolation:    {},
	ViolationRateLimited:       {},
	ViolationPolicyViolation:   {},
}

// Context carries the fields a refusal may reference. Free-form text fields
// are redacted before appearing in output.
type Context struct {
	// UserID or actor identity, used only for ticket derivation.
	UserID string

	// Scope is the caller's authorization scope.
	Scope string

	// Text is the (untrusted) input that triggered the refusal.
	Text string

	// Intent is an optional detected-intent hint.
	Intent string

	// RequiredScope names the scope a scope_violation needed.
	RequiredScope string

	// RetryAfter is the rate-limit cooldown in seconds, if any.
	RetryAfter int

	// AttemptedCost is the charge that would have overdrawn the budget.
	AttemptedCost float64

	// Matched is a short description of what matched (already safe text
	// such as a reason string, never raw input).
	Matched string

	// RuleID names the policy rule behind the refusal.
	RuleID string
}

// Refusal is the rendered, safe response for a refused request.
type Refusal struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	PolicyReference string   `json:"policy_reference"`
	Remediation     string   `json:"remediation,omitempty"`
	Escalation      string   `json:"escalation,omitempty"`
	NextSteps       []string `json:"next_steps,omitempty"`
	AppealURL       string   `json:"appeal_url,omitempty"`
	TicketID        string   `json:"ticket_id"`
	RetryAfter      int      `json:"retry_after_seconds,omitempty"`
	IssuedAt        string   `json:"issued_at"`
}

// Generator renders refusals. It is stateless and safe for concurrent use.
type Generator struct {
	policyPrefix      string
	escalationContact string
	appealBaseURL     string

	// now is swappable for deterministic tests.
	now func() time.Time
}

// ticketNamespace is the fixed UUIDv5 namespace for ticket derivation.
var ticketNamespace = uuid.MustParse("12345678-1234-5678-1234-567812345678")

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the generator's clock.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithContact sets the escalation contact address.
func WithContact(contact string) Option {
	return func(g *Generator) { g.escalationContact = contact }
}

// NewGenerator creates a Generator with the given policy prefix (used in
// policy references like "SATURN-RATE_LIMITED-001").
func NewGenerator(policyPrefix string, opts ...Option) *Generator {
	g := &Generator{
		policyPrefix:      policyPrefix,
		escalationContact: "security@example.com",
		appealBaseURL:     "https://support.example.com/appeal",
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate renders the refusal for a violation. Identical context within the
// same 5-minute clock bucket yields an identical ticket.
func (g *Generator) Generate(violation Violation, ctx Context) *Refusal {
	v := g.coerce(violation)
	ticket := g.ticket(v, ctx)

	r := &Refusal{
		Status:          "blocked",
		Message:         messages[v],
		PolicyReference: g.policyReference(v, ctx),
		Remediation:     g.remediation(v, ctx),
		Escalation:      fmt.Sprintf("If you believe this is an error, contact %s and include reference %s.", g.escalationContact, ticket),
		NextSteps:       suggestions(ctx),
		AppealURL:       g.appealBaseURL + "/" + ticket,
		TicketID:        ticket,
		IssuedAt:        g.now().UTC().Format(time.RFC3339),
	}
	if v == ViolationRateLimited && ctx.RetryAfter > 0 {
		r.RetryAfter = ctx.RetryAfter
	}
	return r
}

func (g *Generator) coerce(v Violation) Violation {
	v = Violation(strings.ToLower(strings.TrimSpace(string(v))))
	if _, ok := knownViolations[v]; ok {
		return v
	}
	return ViolationPolicyViolation
}

func (g *Generator) policyReference(v Violation, ctx Context) string {
	ruleID := ctx.RuleID
	if ruleID == "" {
		ruleID = "001"
	}
	return fmt.Sprintf("%s-%s-%s", g.policyPrefix, strings.ToUpper(string(v)), ruleID)
}

// ticket derives a stable reference ID from a 5-minute clock bucket and the
// non-sensitive context fields. No randomness: the same violation in the
// same bucket maps to the same ticket.
func (g *Generator) ticket(v Violation, ctx Context) string {
	user := ctx.UserID
	if user == "" {
		user = "anon"
	}
	basis := map[string]string{
		"user":      user,
		"violation": string(v),
		"scope":     ctx.Scope,
		"ts_bucket": g.timeBucket(5 * time.Minute),
	}

	keys := make([]string, 0, len(basis))
	for k := range basis {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+basis[k])
	}

	return uuid.NewSHA1(ticketNamespace, []byte(strings.Join(parts, "|"))).String()
}

func (g *Generator) timeBucket(size time.Duration) string {
	return g.now().UTC().Truncate(size).Format(time.RFC3339)
}

var messages = map[Violation]string{
	ViolationInjectionDetected: "Request blocked: embedded instructions violate isolation policy.",
	ViolationBudgetExceeded:    "Request blocked: cost budget would be exceeded.",
	ViolationSystemError:       "Request blocked: internal error; safe refusal returned.",
	ViolationScopeViolation:    "Request blocked: the requested operation requires additional authorization.",
	ViolationRateLimited:       "Request blocked: rate limit exceeded.",
	ViolationPolicyViolation:   "Request blocked: this action conflicts with active policy.",
}

func (g *Generator) remediation(v Violation, ctx Context) string {
	switch v {
	case ViolationInjectionDetected:
		return "Please rephrase the request in plain language without meta-instructions, code comments, or requests to ignore rules."
	case ViolationBudgetExceeded:
		return "Reduce the scope of the request; the cost budget does not refill."
	case ViolationSystemError:
		return "Please try again. If the issue persists, attempt a simpler request."
	case ViolationScopeViolation:
		if ctx.RequiredScope != "" {
			return fmt.Sprintf("Verify your credentials or request access to the %q scope.", ctx.RequiredScope)
		}
		return "Verify your credentials or request access to the required scope."
	case ViolationRateLimited:
		if ctx.RetryAfter > 0 {
			return fmt.Sprintf("Please wait %ds before retrying, or slow down request frequency.", ctx.RetryAfter)
		}
		return "Please slow down request frequency."
	default:
		return "Rewrite the request to avoid restricted data, capabilities, or formats."
	}
}

// suggestions proposes next steps. Raw input text influences the advice but
// is never echoed.
func suggestions(ctx Context) []string {
	var out []string

	if strings.TrimSpace(ctx.Text) == "" {
		out = append(out, "Describe your goal in plain language without including any embedded commands or code.")
	} else {
		out = append(out, "Remove any meta-instructions and ask the factual question plainly.")
		if len(ctx.Text) > 500 {
			out = append(out, "Shorten the request or split it into smaller, focused questions.")
		}
	}

	if ctx.RequiredScope != "" && !strings.EqualFold(ctx.Scope, ctx.RequiredScope) {
		out = append(out, fmt.Sprintf("Request access to the %q scope or proceed within your current scope.", ctx.RequiredScope))
	}

	if strings.Contains(strings.ToLower(ctx.Text), "internal") || ctx.Intent == "system_probe" {
		out = append(out, "Ask for public documentation or a high-level overview rather than internal specifics.")
	}

	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
