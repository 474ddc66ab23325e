package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"guardrail-hq/saturn/pkg/patterns"
)

func TestNewWatcher_Validation(t *testing.T) {
	if _, err := NewWatcher(WatcherConfig{}, func(*patterns.RuleSet) {}); err == nil {
		t.Error("Expected error for empty path")
	}
	if _, err := NewWatcher(WatcherConfig{Path: "gate.yaml"}, nil); err == nil {
		t.Error("Expected error for nil callback")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	initial := `
rules:
  - category: custom
    severity: high
    weight: 0.9
    patterns:
      - "first phrase"
`
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	swapped := make(chan *patterns.RuleSet, 1)
	w, err := NewWatcher(WatcherConfig{Path: path, DebounceInterval: 20 * time.Millisecond}, func(rs *patterns.RuleSet) {
		select {
		case swapped <- rs:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	defer w.Stop()

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)

	updated := `
rules:
  - category: custom
    severity: high
    weight: 0.9
    patterns:
      - "first phrase"
      - "second phrase"
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case rs := <-swapped:
		if rs.Len() != 2 {
			t.Errorf("Reloaded rule count = %d, want 2", rs.Len())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatcher_RejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	swaps := make(chan *patterns.RuleSet, 1)
	w, err := NewWatcher(WatcherConfig{Path: path, DebounceInterval: 20 * time.Millisecond}, func(rs *patterns.RuleSet) {
		swaps <- rs
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	// Invalid YAML must be rejected, keeping the previous rules active.
	if err := os.WriteFile(path, []byte(":\n  - not yaml: ["), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case <-swaps:
		t.Error("Broken config must not trigger a swap")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	defer d.stop()

	fired := make(chan struct{}, 10)
	for i := 0; i < 5; i++ {
		d.trigger(func() { fired <- struct{}{} })
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Debounced callback never fired")
	}

	select {
	case <-fired:
		t.Error("Burst of triggers fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}
