// Package integrity runs scheduled verification of the audit chain.
//
// The ledger never repairs itself; the scheduler's job is detection. A break
// found on schedule is logged at Error and handed to the optional OnBreak
// callback so operators can alert on it.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"guardrail-hq/saturn/pkg/ledger"
)

// Config configures the integrity scheduler.
type Config struct {
	// Schedule is a standard cron expression (e.g. "0 * * * *" for hourly).
	// Empty disables scheduled verification.
	Schedule string `yaml:"schedule"`
}

// Scheduler verifies the chain on a cron schedule.
type Scheduler struct {
	ledger  *ledger.Ledger
	config  Config
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	running bool

	// OnBreak is invoked with the verification result when a break is
	// found. Optional.
	OnBreak func(*ledger.VerifyResult)
}

// NewScheduler creates a scheduler for the given ledger.
func NewScheduler(l *ledger.Ledger, config Config) *Scheduler {
	return &Scheduler{
		ledger: l,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "ledger.integrity"),
	}
}

// Start begins scheduled verification. If no schedule is configured, Start
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("verify schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.runVerify); err != nil {
		return fmt.Errorf("failed to schedule verification: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("integrity scheduler started",
		"schedule", s.config.Schedule,
		"path", s.ledger.Path(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runVerify executes one verification cycle.
func (s *Scheduler) runVerify() {
	start := time.Now()
	res, err := s.ledger.Verify()
	if err != nil {
		s.logger.Error("scheduled verification failed to run",
			"error", err,
		)
		return
	}

	if !res.OK {
		s.logger.Error("audit chain break detected",
			"break_index", res.BreakIndex,
			"detail", res.Detail,
			"entries", res.Entries,
		)
		if s.OnBreak != nil {
			s.OnBreak(res)
		}
		return
	}

	s.logger.Info("audit chain verified",
		"entries", res.Entries,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop stops the scheduler and waits for any running verification.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("integrity scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
