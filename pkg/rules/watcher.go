// Package rules hot-reloads the pattern rule file.
//
// The watcher recompiles the rule set on file changes and hands the new set
// to a swap callback. A rule file that fails to compile is rejected and the
// previous set stays active; reload never degrades the gate.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"guardrail-hq/saturn/pkg/config"
	"guardrail-hq/saturn/pkg/patterns"
)

// WatcherConfig configures the rule file watcher.
type WatcherConfig struct {
	// Path is the configuration file carrying the rule groups.
	Path string

	// DebounceInterval is the quiet period before a change triggers a
	// reload. Editors often emit several events per save. Default 200ms.
	DebounceInterval time.Duration
}

// Watcher watches the rule file and recompiles on change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	config   WatcherConfig
	logger   *slog.Logger
	onSwap   func(*patterns.RuleSet)
	debounce *debouncer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher that calls onSwap with each successfully
// recompiled rule set.
func NewWatcher(cfg WatcherConfig, onSwap func(*patterns.RuleSet)) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watch path cannot be empty")
	}
	if onSwap == nil {
		return nil, fmt.Errorf("swap callback cannot be nil")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 200 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		config:   cfg,
		logger:   slog.Default().With("component", "rules.watcher"),
		onSwap:   onSwap,
		debounce: newDebouncer(cfg.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks processing file events until the context is cancelled or
// Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(w.config.Path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.config.Path, err)
	}

	w.logger.Info("rule watcher started",
		"path", w.config.Path,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rule watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("rule watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}

			w.debounce.trigger(func() {
				w.reload(event)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("rule watcher error", "error", err)
		}
	}
}

// reload recompiles the rule file and swaps it in on success.
func (w *Watcher) reload(event fsnotify.Event) {
	cfg, err := config.Load(w.config.Path)
	if err != nil {
		w.logger.Error("rule reload rejected, keeping previous rules",
			"path", w.config.Path,
			"error", err,
		)
		return
	}

	rs, err := cfg.CompileRules()
	if err != nil {
		w.logger.Error("rule compile failed, keeping previous rules",
			"path", w.config.Path,
			"error", err,
		)
		return
	}

	w.onSwap(rs)
	w.logger.Info("rules reloaded",
		"path", w.config.Path,
		"rules", rs.Len(),
		"op", event.Op.String(),
	)
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.debounce.stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// debouncer collapses rapid event bursts into a single callback after a
// quiet period.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopCh   chan struct{}
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
		}
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
}

func (d *debouncer) stop() {
	close(d.stopCh)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
