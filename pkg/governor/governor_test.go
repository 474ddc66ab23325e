package governor

import (
	"math"
	"sync"
	"testing"
	"time"

	"guardrail-hq/saturn/pkg/governor/storage"
)

// ============================================================================
// Budget Tests
// ============================================================================

func TestReserve_Basic(t *testing.T) {
	g := New(Config{InitialBudget: 1.0, WindowSeconds: 60}, nil)

	if !g.Reserve(0.25) {
		t.Error("Expected reserve to succeed with full budget")
	}
	if got := g.Remaining(); got != 0.75 {
		t.Errorf("Remaining = %v, want 0.75", got)
	}
	if g.Reserve(0.80) {
		t.Error("Expected reserve beyond remaining budget to fail")
	}
	if got := g.Remaining(); got != 0.75 {
		t.Errorf("Failed reserve must not touch budget, got %v", got)
	}
}

func TestReserve_RejectsInvalidCost(t *testing.T) {
	g := New(Config{InitialBudget: 1.0, WindowSeconds: 60}, nil)

	for _, cost := range []float64{-0.1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if g.Reserve(cost) {
			t.Errorf("Expected Reserve(%v) to fail", cost)
		}
	}
	if got := g.Remaining(); got != 1.0 {
		t.Errorf("Invalid reserves must not touch budget, got %v", got)
	}
}

func TestReserve_NoOverdraftUnderConcurrency(t *testing.T) {
	g := New(Config{InitialBudget: 1.0, WindowSeconds: 60}, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	// 100 goroutines each try to reserve 0.25; exactly 4 can win.
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Reserve(0.25) {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 4 {
		t.Errorf("Expected exactly 4 successful reserves, got %d", succeeded)
	}
	if got := g.Remaining(); got != 0 {
		t.Errorf("Remaining = %v, want 0", got)
	}
}

func TestSpend_FloorsAtZero(t *testing.T) {
	g := New(Config{InitialBudget: 0.3, WindowSeconds: 60}, nil)
	g.Spend(1.0)
	if got := g.Remaining(); got != 0 {
		t.Errorf("Remaining = %v, want 0", got)
	}
}

func TestNew_NegativeBudgetFloored(t *testing.T) {
	g := New(Config{InitialBudget: -5, WindowSeconds: 60}, nil)
	if got := g.Remaining(); got != 0 {
		t.Errorf("Remaining = %v, want 0", got)
	}
}

// ============================================================================
// Rate Window Tests
// ============================================================================

func TestAdmit_DisabledWhenNoLimit(t *testing.T) {
	g := New(Config{InitialBudget: 1.0, RateLimit: 0, WindowSeconds: 10}, nil)
	now := time.Now()
	for i := 0; i < 50; i++ {
		allowed, _ := g.Admit(now)
		if !allowed {
			t.Fatal("Zero rate limit must disable the window")
		}
		g.Commit(now)
	}
}

func TestAdmit_RetryAfter(t *testing.T) {
	g := New(Config{InitialBudget: 1.0, RateLimit: 3, WindowSeconds: 10}, nil)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		allowed, _ := g.Admit(base)
		if !allowed {
			t.Fatalf("Admission %d should be allowed", i)
		}
		g.Commit(base)
	}

	// Fourth request two seconds later: oldest slot frees at base+10s.
	allowed, retryAfter := g.Admit(base.Add(2 * time.Second))
	if allowed {
		t.Fatal("Fourth admission within the window should be refused")
	}
	if retryAfter != 8 {
		t.Errorf("retryAfter = %d, want 8", retryAfter)
	}
}

func TestAdmit_WindowSlides(t *testing.T) {
	g := New(Config{InitialBudget: 1.0, RateLimit: 3, WindowSeconds: 10}, nil)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		g.Commit(base)
	}

	allowed, _ := g.Admit(base.Add(11 * time.Second))
	if !allowed {
		t.Error("Admission after the window slid should be allowed")
	}
	if got := g.InWindow(base.Add(11 * time.Second)); got != 0 {
		t.Errorf("InWindow = %d, want 0 after slide", got)
	}
}

func TestSnapshot_Atomic(t *testing.T) {
	g := New(Config{InitialBudget: 0.8, RateLimit: 2, WindowSeconds: 10}, nil)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g.Commit(base)
	g.Commit(base)

	snap := g.Snapshot(base.Add(time.Second))
	if snap.Remaining != 0.8 {
		t.Errorf("Snapshot.Remaining = %v, want 0.8", snap.Remaining)
	}
	if snap.RateAllowed {
		t.Error("Snapshot should report the window as full")
	}
	if snap.InWindow != 2 {
		t.Errorf("Snapshot.InWindow = %d, want 2", snap.InWindow)
	}
	if snap.RetryAfter != 9 {
		t.Errorf("Snapshot.RetryAfter = %d, want 9", snap.RetryAfter)
	}
}

// ============================================================================
// Journal Tests
// ============================================================================

func TestNew_RestoresFromJournal(t *testing.T) {
	j := storage.NewMemoryJournal()
	g1 := New(Config{InitialBudget: 1.0, WindowSeconds: 60}, j)

	if !g1.Reserve(0.3) {
		t.Fatal("Reserve failed")
	}

	// A restarted governor over the same journal resumes the spent state.
	g2 := New(Config{InitialBudget: 1.0, WindowSeconds: 60}, j)
	if got := g2.Remaining(); got != 0.7 {
		t.Errorf("Restored Remaining = %v, want 0.7", got)
	}
}

func TestNew_JournalOverspendFloored(t *testing.T) {
	j := storage.NewMemoryJournal()
	if err := j.RecordSpend(5.0, "spend", ""); err != nil {
		t.Fatalf("RecordSpend failed: %v", err)
	}

	g := New(Config{InitialBudget: 1.0, WindowSeconds: 60}, j)
	if got := g.Remaining(); got != 0 {
		t.Errorf("Remaining = %v, want 0", got)
	}
}
