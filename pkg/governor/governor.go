package governor

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Config configures a Governor.
type Config struct {
	// InitialBudget is the starting cost budget. The budget never refills.
	InitialBudget float64 `yaml:"initial_budget"`

	// RateLimit is the maximum number of admitted requests per window.
	// Zero disables rate limiting.
	RateLimit int `yaml:"rate_limit"`

	// WindowSeconds is the sliding-window length. Minimum 1.
	WindowSeconds int `yaml:"window_seconds"`
}

// DefaultConfig returns conservative governor settings.
func DefaultConfig() Config {
	return Config{
		InitialBudget: 1.0,
		RateLimit:     0,
		WindowSeconds: 60,
	}
}

// Journal persists budget spend so the non-refillable budget survives
// restarts. Implementations live in the storage subpackage.
type Journal interface {
	// RecordSpend appends one spend record.
	RecordSpend(amount float64, action, requestID string) error

	// TotalSpent returns the sum of all recorded spends.
	TotalSpent() (float64, error)

	// Close releases the journal.
	Close() error
}

// Snapshot is a point-in-time view of governor state, taken atomically.
// The policy router consumes it; it is also attached to audit entries.
type Snapshot struct {
	Remaining     float64 `json:"remaining_budget"`
	RateLimit     int     `json:"rate_limit,omitempty"`
	WindowSeconds int     `json:"window_seconds"`
	InWindow      int     `json:"requests_in_window"`
	RateAllowed   bool    `json:"rate_allowed"`
	RetryAfter    int     `json:"retry_after_seconds,omitempty"`
}

// Governor owns the cost budget and the rate window for one pipeline.
type Governor struct {
	mu sync.Mutex

	remaining float64
	limit     int
	window    time.Duration
	stamps    []time.Time

	journal Journal
	logger  *slog.Logger
}

// New creates a Governor. If journal is non-nil, previously recorded spend
// is subtracted from the initial budget at construction (floored at zero).
func New(config Config, journal Journal) *Governor {
	if config.WindowSeconds < 1 {
		config.WindowSeconds = 1
	}
	g := &Governor{
		remaining: math.Max(0, config.InitialBudget),
		limit:     config.RateLimit,
		window:    time.Duration(config.WindowSeconds) * time.Second,
		journal:   journal,
		logger:    slog.Default().With("component", "governor"),
	}

	if journal != nil {
		spent, err := journal.TotalSpent()
		if err != nil {
			g.logger.Warn("spend journal unreadable, starting from full budget",
				"error", err,
			)
		} else if spent > 0 {
			g.remaining = math.Max(0, g.remaining-spent)
			g.logger.Info("budget restored from spend journal",
				"spent", spent,
				"remaining", g.remaining,
			)
		}
	}

	return g
}

// Reserve atomically checks remaining >= cost and, if so, decrements and
// returns true. On failure the budget is untouched; there is no partial
// spend.
func (g *Governor) Reserve(cost float64) bool {
	if cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return false
	}
	g.mu.Lock()
	ok := g.remaining >= cost
	if ok {
		g.remaining -= cost
	}
	g.mu.Unlock()

	if ok {
		g.journalSpend(cost, "reserve", "")
	}
	return ok
}

// Spend unconditionally decrements the budget, floored at zero. Use only
// after a decision to charge has already been made.
func (g *Governor) Spend(cost float64) {
	if cost <= 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return
	}
	g.mu.Lock()
	g.remaining = math.Max(0, g.remaining-cost)
	g.mu.Unlock()

	g.journalSpend(cost, "spend", "")
}

// Remaining returns the current budget, rounded to 3 decimals for stable
// presentation.
func (g *Governor) Remaining() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return round3(g.remaining)
}

// Admit reports whether a request arriving at now fits the rate window.
// It does not record the admission; call Commit for that. When not allowed,
// retryAfter is the whole seconds until the oldest admitted timestamp exits
// the window, clamped to >= 0.
func (g *Governor) Admit(now time.Time) (allowed bool, retryAfter int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limit <= 0 {
		return true, 0
	}

	g.trimLocked(now)
	if len(g.stamps) < g.limit {
		return true, 0
	}

	oldest := g.stamps[0]
	wait := oldest.Add(g.window).Sub(now).Seconds()
	retryAfter = int(math.Ceil(wait))
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}

// Commit records an admission at now. Callers invoke it after the pipeline
// has actually consumed a rate slot for the request.
func (g *Governor) Commit(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limit <= 0 {
		return
	}
	g.trimLocked(now)
	g.stamps = append(g.stamps, now)
}

// InWindow returns the number of admissions currently inside the window.
func (g *Governor) InWindow(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trimLocked(now)
	return len(g.stamps)
}

// Snapshot captures budget and rate state in one critical section.
func (g *Governor) Snapshot(now time.Time) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		Remaining:     round3(g.remaining),
		RateLimit:     g.limit,
		WindowSeconds: int(g.window / time.Second),
		RateAllowed:   true,
	}

	if g.limit > 0 {
		g.trimLocked(now)
		snap.InWindow = len(g.stamps)
		if len(g.stamps) >= g.limit {
			snap.RateAllowed = false
			wait := g.stamps[0].Add(g.window).Sub(now).Seconds()
			snap.RetryAfter = int(math.Ceil(wait))
			if snap.RetryAfter < 0 {
				snap.RetryAfter = 0
			}
		}
	}

	return snap
}

// trimLocked drops timestamps older than now - window. Caller holds mu.
func (g *Governor) trimLocked(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(g.stamps) && g.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		g.stamps = append(g.stamps[:0], g.stamps[i:]...)
	}
}

// journalSpend records a spend outside the governor lock. Journal failures
// never affect the in-memory decision; they are logged and dropped.
func (g *Governor) journalSpend(amount float64, action, requestID string) {
	if g.journal == nil {
		return
	}
	if err := g.journal.RecordSpend(amount, action, requestID); err != nil {
		g.logger.Warn("failed to journal budget spend",
			"amount", amount,
			"action", action,
			"error", err,
		)
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
