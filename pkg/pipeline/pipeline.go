// Package pipeline orchestrates the full gate decision path:
// admission, classification, routing, budget charging, response
// rendering, and audit.
//
// The pipeline fails closed. A panic during classification, a budget
// reservation that cannot be covered, or an audit failure all resolve to a
// refusal, never to an unchecked allow. Every decision, including refusals,
// is committed to the hash-chained audit ledger.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"guardrail-hq/saturn/pkg/classify"
	"guardrail-hq/saturn/pkg/governor"
	"guardrail-hq/saturn/pkg/ledger"
	"guardrail-hq/saturn/pkg/patterns"
	"guardrail-hq/saturn/pkg/refusal"
	"guardrail-hq/saturn/pkg/route"
	"guardrail-hq/saturn/pkg/telemetry/metrics"
)

// Request is one inbound unit of work.
type Request struct {
	// Text is the untrusted input under evaluation.
	Text string

	// Scope is the caller's authorization scope (default "public").
	Scope string

	// UserID identifies the caller for ticket derivation. Optional.
	UserID string

	// History carries recent prior turns for context heuristics.
	History []string
}

// Result is the gate's decision for one request.
type Result struct {
	// Status is "allowed", "template", "blocked", or "error".
	Status string `json:"status"`

	// Response is the rendered output for allowed and template decisions.
	Response string `json:"response,omitempty"`

	// Refusal is the structured refusal for blocked and error decisions.
	Refusal *refusal.Refusal `json:"refusal,omitempty"`

	// Reason is the short decision explanation, mirrored in the audit entry.
	Reason string `json:"reason"`

	RiskLevel classify.Level `json:"risk_level"`
	Pressure  float64        `json:"pressure"`

	// Classification is nil for decisions made before classification ran
	// (rate-limit pre-gate) or when classification failed.
	Classification *classify.Classification `json:"classification,omitempty"`

	LatencyMS       float64 `json:"latency_ms"`
	CostCharged     float64 `json:"cost_charged"`
	BudgetRemaining float64 `json:"budget_remaining"`

	// RetryAfter is set (seconds) on rate-limited blocks.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Stats is a point-in-time operational summary.
type Stats struct {
	RequestsProcessed int64   `json:"requests_processed"`
	AttacksBlocked    int64   `json:"attacks_blocked"`
	BlockRate         float64 `json:"block_rate"`
	BudgetRemaining   float64 `json:"budget_remaining"`
	AuditEntries      int     `json:"audit_entries"`
	RateLimit         int     `json:"rate_limit"`
	WindowSeconds     int     `json:"window_seconds"`
	InWindow          int     `json:"requests_in_window"`
}

// Options wires the orchestrator's dependencies.
type Options struct {
	// Rules is the compiled pattern set; nil selects the built-in rules.
	Rules *patterns.RuleSet

	// Classifier tunes pressure aggregation.
	Classifier classify.Config

	// Policy carries routing thresholds.
	Policy route.Policy

	// Governor enforces the cost budget and rate window. Required.
	Governor *governor.Governor

	// Ledger receives every decision. Required.
	Ledger *ledger.Ledger

	// Refusals renders refusal bundles; nil selects a default generator.
	Refusals *refusal.Generator

	// Metrics is the optional Prometheus collector.
	Metrics *metrics.Collector
}

// Orchestrator runs the decision path. Safe for concurrent use.
type Orchestrator struct {
	mu            sync.RWMutex // guards classifier swaps
	classifier    *classify.Classifier
	classifierCfg classify.Config

	governor *governor.Governor
	policy   route.Policy
	refusals *refusal.Generator
	ledger   *ledger.Ledger
	metrics  *metrics.Collector
	logger   *slog.Logger

	// commitMu pairs a rate-slot commit with its audit append so the
	// ledger order matches the commit order.
	commitMu sync.Mutex

	requestsProcessed atomic.Int64
	attacksBlocked    atomic.Int64

	now func() time.Time
}

// New creates an orchestrator.
//
// Example:
//
//	gov := governor.New(governor.DefaultConfig(), nil)
//	led, _ := ledger.Open("audit.jsonl")
//	orc, _ := pipeline.New(pipeline.Options{Governor: gov, Ledger: led})
//	result := orc.Process(pipeline.Request{Text: "What is machine learning?"})
func New(opts Options) (*Orchestrator, error) {
	if opts.Governor == nil {
		return nil, fmt.Errorf("governor is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}

	cfg := opts.Classifier
	if cfg == (classify.Config{}) {
		cfg = classify.DefaultConfig()
	}
	policy := opts.Policy
	if policy.PIINoticeThreshold <= 0 {
		policy = route.DefaultPolicy()
	}
	refusals := opts.Refusals
	if refusals == nil {
		refusals = refusal.NewGenerator("SATURN")
	}

	return &Orchestrator{
		classifier:    classify.New(opts.Rules, cfg),
		classifierCfg: cfg,
		governor:      opts.Governor,
		policy:        policy,
		refusals:      refusals,
		ledger:        opts.Ledger,
		metrics:       opts.Metrics,
		logger:        slog.Default().With("component", "pipeline"),
		now:           time.Now,
	}, nil
}

// SwapRules replaces the active rule set. In-flight requests finish against
// the set they started with.
func (o *Orchestrator) SwapRules(rules *patterns.RuleSet) {
	o.mu.Lock()
	o.classifier = classify.New(rules, o.classifierCfg)
	o.mu.Unlock()
	o.logger.Info("rule set swapped", "rules", rules.Len())
}

// Process runs one request through the full decision path.
func (o *Orchestrator) Process(req Request) *Result {
	start := o.now()
	o.requestsProcessed.Add(1)

	if req.Scope == "" {
		req.Scope = "public"
	}

	snap := o.governor.Snapshot(start)
	if !snap.RateAllowed {
		return o.rateLimited(req, start, snap)
	}

	c, err := o.classify(req)
	if err != nil {
		return o.systemError(req, start, err)
	}

	piiHits := c.MatchCount("pii_leak")
	cost := route.Cost(req.Text, c)
	routed := route.Route(o.policy, c, snap, piiHits, cost)

	if routed.Action == route.ActionBlock && routed.Reason == route.ReasonBudgetExhausted {
		return o.budgetExhausted(req, start, c, cost)
	}

	if routed.Charge {
		// Reserve is the atomic authority; the snapshot check in routing
		// is advisory and can lose a race.
		if !o.governor.Reserve(cost) {
			return o.budgetExhausted(req, start, c, cost)
		}
	}

	switch routed.Action {
	case route.ActionBlock:
		return o.blocked(req, start, c, routed)
	case route.ActionTemplate:
		return o.templated(req, start, c, routed, cost)
	default:
		return o.allowed(req, start, c, routed, cost)
	}
}

// classify runs the classifier with panic containment. A classifier panic
// becomes an error decision, never an allow.
func (o *Orchestrator) classify(req Request) (c *classify.Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()

	o.mu.RLock()
	cl := o.classifier
	o.mu.RUnlock()

	return cl.Classify(req.Text, req.History), nil
}

// ==========================================================================
// Decision handlers
// ==========================================================================

func (o *Orchestrator) allowed(req Request, start time.Time, c *classify.Classification, routed route.Result, cost float64) *Result {
	response := safeSummary(req.Text, req.Scope, 80)
	latency := o.latencyMS(start)

	o.commitDecision(req, commitOpts{
		decision:    "allowed",
		reason:      routed.Reason,
		riskLevel:   c.RiskLevel,
		cost:        cost,
		latency:     latency,
		pressure:    c.Pressure,
		commitSlot:  true,
		extraFields: nil,
	})

	remaining := o.governor.Remaining()
	o.observe(routed.Action, c.RiskLevel, start, c.Pressure, remaining)

	return &Result{
		Status:          "allowed",
		Response:        response,
		Reason:          routed.Reason,
		RiskLevel:       c.RiskLevel,
		Pressure:        c.Pressure,
		Classification:  c,
		LatencyMS:       latency,
		CostCharged:     cost,
		BudgetRemaining: remaining,
	}
}

func (o *Orchestrator) templated(req Request, start time.Time, c *classify.Classification, routed route.Result, cost float64) *Result {
	echo := safePromptEcho(req.Text, 160)
	response := renderTemplate(routed.TemplateCategory, c.RiskLevel, echo)
	latency := o.latencyMS(start)

	o.commitDecision(req, commitOpts{
		decision:   "template",
		reason:     routed.Reason,
		riskLevel:  c.RiskLevel,
		cost:       cost,
		latency:    latency,
		pressure:   c.Pressure,
		commitSlot: true,
		extraFields: map[string]any{
			"template_used": routed.TemplateCategory,
		},
	})

	remaining := o.governor.Remaining()
	o.observe(routed.Action, c.RiskLevel, start, c.Pressure, remaining)

	return &Result{
		Status:          "template",
		Response:        response,
		Reason:          routed.Reason,
		RiskLevel:       c.RiskLevel,
		Pressure:        c.Pressure,
		Classification:  c,
		LatencyMS:       latency,
		CostCharged:     cost,
		BudgetRemaining: remaining,
	}
}

// blocked handles the high/critical risk refusal. The block is never
// charged, but it does consume a rate slot.
func (o *Orchestrator) blocked(req Request, start time.Time, c *classify.Classification, routed route.Result) *Result {
	o.attacksBlocked.Add(1)

	matched := "pattern match"
	if len(c.Reasons) > 0 {
		matched = c.Reasons[0]
	}
	ref := o.refusals.Generate(refusal.ViolationInjectionDetected, refusal.Context{
		UserID:  req.UserID,
		Scope:   req.Scope,
		Text:    req.Text,
		Matched: matched,
	})
	latency := o.latencyMS(start)

	o.commitDecision(req, commitOpts{
		decision:   "blocked",
		reason:     routed.Reason,
		riskLevel:  c.RiskLevel,
		cost:       0,
		latency:    latency,
		pressure:   c.Pressure,
		commitSlot: true,
	})

	remaining := o.governor.Remaining()
	o.observe(routed.Action, c.RiskLevel, start, c.Pressure, remaining)
	o.metricsAttackBlocked()

	return &Result{
		Status:          "blocked",
		Refusal:         ref,
		Reason:          routed.Reason,
		RiskLevel:       c.RiskLevel,
		Pressure:        c.Pressure,
		Classification:  c,
		LatencyMS:       latency,
		BudgetRemaining: remaining,
	}
}

// rateLimited handles the admission pre-gate refusal. The refused request
// still consumes a rate slot, otherwise a caller could probe the window
// for free.
func (o *Orchestrator) rateLimited(req Request, start time.Time, snap governor.Snapshot) *Result {
	o.attacksBlocked.Add(1)

	ref := o.refusals.Generate(refusal.ViolationRateLimited, refusal.Context{
		UserID:     req.UserID,
		Scope:      req.Scope,
		Text:       req.Text,
		RetryAfter: snap.RetryAfter,
	})
	latency := o.latencyMS(start)

	o.commitDecision(req, commitOpts{
		decision:   "blocked",
		reason:     route.ReasonRateLimited,
		riskLevel:  classify.LevelLow,
		cost:       0,
		latency:    latency,
		pressure:   0,
		commitSlot: true,
		extraFields: map[string]any{
			"retry_after": snap.RetryAfter,
		},
	})

	remaining := o.governor.Remaining()
	o.observe(route.ActionBlock, classify.LevelLow, start, 0, remaining)
	o.metricsAttackBlocked()

	return &Result{
		Status:          "blocked",
		Refusal:         ref,
		Reason:          route.ReasonRateLimited,
		RiskLevel:       classify.LevelLow,
		LatencyMS:       latency,
		BudgetRemaining: remaining,
		RetryAfter:      snap.RetryAfter,
	}
}

// budgetExhausted handles refusals where the budget cannot cover the
// charge. No rate slot is consumed and nothing is charged.
func (o *Orchestrator) budgetExhausted(req Request, start time.Time, c *classify.Classification, attemptedCost float64) *Result {
	o.attacksBlocked.Add(1)

	ref := o.refusals.Generate(refusal.ViolationBudgetExceeded, refusal.Context{
		UserID:        req.UserID,
		Scope:         req.Scope,
		Text:          req.Text,
		AttemptedCost: attemptedCost,
	})
	latency := o.latencyMS(start)

	riskLevel := classify.LevelLow
	pressure := 0.0
	if c != nil {
		riskLevel = c.RiskLevel
		pressure = c.Pressure
	}

	o.commitDecision(req, commitOpts{
		decision:   "blocked",
		reason:     route.ReasonBudgetExhausted,
		riskLevel:  riskLevel,
		cost:       0,
		latency:    latency,
		pressure:   pressure,
		commitSlot: false,
		extraFields: map[string]any{
			"attempted_cost": attemptedCost,
		},
	})

	remaining := o.governor.Remaining()
	o.observe(route.ActionBlock, riskLevel, start, pressure, remaining)
	o.metricsAttackBlocked()

	return &Result{
		Status:          "blocked",
		Refusal:         ref,
		Reason:          route.ReasonBudgetExhausted,
		RiskLevel:       riskLevel,
		Pressure:        pressure,
		Classification:  c,
		LatencyMS:       latency,
		BudgetRemaining: remaining,
	}
}

// systemError converts an internal failure into a safe refusal. No rate
// slot, no charge.
func (o *Orchestrator) systemError(req Request, start time.Time, cause error) *Result {
	o.attacksBlocked.Add(1)
	o.logger.Error("decision path failed, refusing",
		"error", cause,
	)

	ref := o.refusals.Generate(refusal.ViolationSystemError, refusal.Context{
		UserID: req.UserID,
		Scope:  req.Scope,
		Text:   req.Text,
	})
	latency := o.latencyMS(start)

	o.commitDecision(req, commitOpts{
		decision:   "error",
		reason:     fmt.Sprintf("system error: %v", cause),
		riskLevel:  classify.LevelLow,
		cost:       0,
		latency:    latency,
		pressure:   0,
		commitSlot: false,
	})

	remaining := o.governor.Remaining()
	o.observe(route.ActionError, classify.LevelLow, start, 0, remaining)

	return &Result{
		Status:          "error",
		Refusal:         ref,
		Reason:          "system error",
		RiskLevel:       classify.LevelLow,
		LatencyMS:       latency,
		BudgetRemaining: remaining,
	}
}

// ==========================================================================
// Commit and accounting
// ==========================================================================

type commitOpts struct {
	decision    string
	reason      string
	riskLevel   classify.Level
	cost        float64
	latency     float64
	pressure    float64
	commitSlot  bool
	extraFields map[string]any
}

// commitDecision pairs the rate-slot commit with the audit append under a
// single lock so the ledger order matches the commit order. Audit failures
// are logged, never dropped silently, and never convert a refusal into an
// allow.
func (o *Orchestrator) commitDecision(req Request, opts commitOpts) {
	extra := map[string]any{
		"latency_ms":       opts.latency,
		"pressure":         opts.pressure,
		"scope":            req.Scope,
		"budget_remaining": o.governor.Remaining(),
	}
	for k, v := range opts.extraFields {
		extra[k] = v
	}

	o.commitMu.Lock()
	if opts.commitSlot {
		o.governor.Commit(o.now())
	}
	_, err := o.ledger.Append(ledger.Record{
		Decision:    opts.decision,
		Reason:      opts.reason,
		InputDigest: ledger.DigestInput(req.Text),
		RiskLevel:   string(opts.riskLevel),
		CostCharged: opts.cost,
		Extra:       extra,
	})
	o.commitMu.Unlock()

	if err != nil {
		o.logger.Error("audit append failed",
			"decision", opts.decision,
			"error", err,
		)
	} else if o.metrics != nil {
		o.metrics.RecordLedgerAppend()
	}
}

func (o *Orchestrator) observe(action route.Action, level classify.Level, start time.Time, pressure, remaining float64) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordDecision(string(action), string(level), o.now().Sub(start))
	o.metrics.SetBudgetRemaining(remaining)
	o.metrics.SetLastPressure(pressure)
}

func (o *Orchestrator) metricsAttackBlocked() {
	if o.metrics != nil {
		o.metrics.RecordAttackBlocked()
	}
}

// Stats returns a point-in-time summary of gate activity.
func (o *Orchestrator) Stats() Stats {
	snap := o.governor.Snapshot(o.now())
	processed := o.requestsProcessed.Load()
	blocked := o.attacksBlocked.Load()

	blockRate := 0.0
	if processed > 0 {
		blockRate = float64(blocked) / float64(processed)
	}

	return Stats{
		RequestsProcessed: processed,
		AttacksBlocked:    blocked,
		BlockRate:         blockRate,
		BudgetRemaining:   snap.Remaining,
		AuditEntries:      o.ledger.Count(),
		RateLimit:         snap.RateLimit,
		WindowSeconds:     snap.WindowSeconds,
		InWindow:          snap.InWindow,
	}
}

// latencyMS reports elapsed milliseconds, rounded to one decimal place.
func (o *Orchestrator) latencyMS(start time.Time) float64 {
	ms := float64(o.now().Sub(start).Microseconds()) / 1000.0
	return float64(int(ms*10+0.5)) / 10.0
}
