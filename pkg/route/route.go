// Package route maps a risk classification, a governor snapshot, and the
// PII-heuristic signal to a gate action.
//
// Route is a pure function evaluated in strict, first-match-wins precedence
// order. Given identical inputs it always returns the same result, which
// keeps routing reproducible and reviewable.
package route

import (
	"guardrail-hq/saturn/pkg/classify"
	"guardrail-hq/saturn/pkg/governor"
)

// Action is the gate's decision for one request.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionTemplate Action = "template"
	ActionBlock    Action = "block"
	ActionError    Action = "error"
)

// Template categories for the constrained-response path.
const (
	TemplateGeneral   = "general"
	TemplatePIINotice = "pii_notice"
)

// Block reasons, attached to the decision and the audit entry.
const (
	ReasonRateLimited     = "rate limit exceeded"
	ReasonBudgetExhausted = "budget exhausted"
	ReasonHighRisk        = "high risk - policy block"
)

// Policy carries the router's tunables.
type Policy struct {
	// PIINoticeThreshold is the minimum pressure at which a PII hit routes
	// to the pii_notice template. Default 0.35.
	PIINoticeThreshold float64 `yaml:"pii_notice_threshold"`
}

// DefaultPolicy returns the standard routing thresholds.
func DefaultPolicy() Policy {
	return Policy{PIINoticeThreshold: 0.35}
}

// Result is the routing outcome.
type Result struct {
	Action Action

	// Reason is a short human-readable explanation for non-allow actions.
	Reason string

	// TemplateCategory selects the constrained response when Action is
	// ActionTemplate.
	TemplateCategory string

	// RetryAfter is set (seconds) when the rate window refused admission.
	RetryAfter int

	// Charge reports whether the cost budget is charged for this action.
	// Only allow and template charge; block never does, otherwise an
	// attacker could drain a victim's budget by triggering blocks.
	Charge bool
}

// Route evaluates the precedence ladder:
//
//  1. rate-window admission failed            -> block, not charged
//  2. budget cannot cover the minimum charge  -> block, not charged
//  3. risk high or critical                   -> block, not charged
//  4. PII hit and pressure >= notice level    -> template (pii_notice)
//  5. risk medium                             -> template (general)
//  6. otherwise                               -> allow
func Route(p Policy, c *classify.Classification, snap governor.Snapshot, piiHits int, minCharge float64) Result {
	if !snap.RateAllowed {
		return Result{
			Action:     ActionBlock,
			Reason:     ReasonRateLimited,
			RetryAfter: snap.RetryAfter,
		}
	}

	if snap.Remaining < minCharge {
		return Result{
			Action: ActionBlock,
			Reason: ReasonBudgetExhausted,
		}
	}

	if c.RiskLevel.AtLeast(classify.LevelHigh) {
		return Result{
			Action: ActionBlock,
			Reason: ReasonHighRisk,
		}
	}

	threshold := p.PIINoticeThreshold
	if threshold <= 0 {
		threshold = DefaultPolicy().PIINoticeThreshold
	}
	if piiHits >= 1 && c.Pressure >= threshold {
		return Result{
			Action:           ActionTemplate,
			Reason:           "pii detected - notice template",
			TemplateCategory: TemplatePIINotice,
			Charge:           true,
		}
	}

	if c.RiskLevel == classify.LevelMedium {
		return Result{
			Action:           ActionTemplate,
			Reason:           "medium risk - template mode",
			TemplateCategory: TemplateGeneral,
			Charge:           true,
		}
	}

	return Result{
		Action: ActionAllow,
		Reason: "low risk - allowed",
		Charge: true,
	}
}
