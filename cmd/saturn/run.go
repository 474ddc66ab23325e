package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"guardrail-hq/saturn/pkg/cli"
	"guardrail-hq/saturn/pkg/config"
	"guardrail-hq/saturn/pkg/governor"
	govstorage "guardrail-hq/saturn/pkg/governor/storage"
	"guardrail-hq/saturn/pkg/ledger"
	"guardrail-hq/saturn/pkg/ledger/integrity"
	ledstorage "guardrail-hq/saturn/pkg/ledger/storage"
	"guardrail-hq/saturn/pkg/pipeline"
	"guardrail-hq/saturn/pkg/refusal"
	"guardrail-hq/saturn/pkg/rules"
	"guardrail-hq/saturn/pkg/telemetry/metrics"
)

var runFlags struct {
	scope   string
	userID  string
	jsonOut bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive gate",
	Long: `Start the gate and read requests from stdin, one per line.

Each line is classified, routed, charged against the budget, and audited.
The decision is printed per line; use --json for the full structured result.

Examples:
  # Interactive session with default config
  saturn run

  # Custom config, machine-readable output
  saturn run --config gate.yaml --json

  # Pipe a batch of requests through the gate
  cat requests.txt | saturn run --json`,
	RunE: runGate,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.scope, "scope", "public", "authorization scope for requests")
	runCmd.Flags().StringVar(&runFlags.userID, "user", "", "user identity for refusal tickets")
	runCmd.Flags().BoolVar(&runFlags.jsonOut, "json", false, "print full JSON results")
}

func runGate(cmd *cobra.Command, args []string) error {
	cfg := config.LoadOrDefault(cfgFile)

	ctx := cli.SetupSignalHandler()

	// Budget spend journal (optional)
	var journal governor.Journal
	if cfg.JournalPath != "" {
		j, err := govstorage.NewSQLiteJournal(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open spend journal: %w", err)
		}
		defer j.Close()
		journal = j
	}
	gov := governor.New(cfg.Governor, journal)

	// Audit ledger with optional query index
	var ledgerOpts []ledger.Option
	if cfg.Ledger.IndexPath != "" {
		idx, err := ledstorage.NewSQLiteIndex(cfg.Ledger.IndexPath)
		if err != nil {
			return fmt.Errorf("open ledger index: %w", err)
		}
		ledgerOpts = append(ledgerOpts, ledger.WithIndex(idx))
	}
	led, err := ledger.Open(cfg.Ledger.Path, ledgerOpts...)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	// Metrics
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.Config{Enabled: true})
		go serveMetrics(ctx, cfg.Metrics.ListenAddr, collector)
	}

	// Scheduled chain verification
	if cfg.Ledger.VerifySchedule != "" {
		sched := integrity.NewScheduler(led, integrity.Config{Schedule: cfg.Ledger.VerifySchedule})
		if collector != nil {
			sched.OnBreak = func(*ledger.VerifyResult) { collector.RecordChainBreak() }
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start integrity scheduler: %w", err)
		}
		defer sched.Stop()
	}

	ruleSet, err := cfg.CompileRules()
	if err != nil {
		return cli.NewConfigError("rules", err.Error())
	}

	orc, err := pipeline.New(pipeline.Options{
		Rules:      ruleSet,
		Classifier: cfg.ClassifierSettings(),
		Policy:     cfg.Router,
		Governor:   gov,
		Ledger:     led,
		Refusals:   refusal.NewGenerator("SATURN"),
		Metrics:    collector,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	// Rule hot reload
	if cfg.WatchRules && cfgFile != "" {
		watcher, err := rules.NewWatcher(rules.WatcherConfig{Path: cfgFile}, orc.SwapRules)
		if err != nil {
			return fmt.Errorf("create rule watcher: %w", err)
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Error("rule watcher exited", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	slog.Info("gate started",
		"rules", ruleSet.Len(),
		"budget", cfg.Governor.InitialBudget,
		"rate_limit", cfg.Governor.RateLimit,
		"ledger", cfg.Ledger.Path,
	)

	return readLoop(ctx, orc)
}

// readLoop feeds stdin lines through the gate until EOF or cancellation.
func readLoop(ctx context.Context, orc *pipeline.Orchestrator) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var history []string
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		text := scanner.Text()
		if text == "" {
			continue
		}

		result := orc.Process(pipeline.Request{
			Text:    text,
			Scope:   runFlags.scope,
			UserID:  runFlags.userID,
			History: history,
		})
		history = appendHistory(history, text, 10)

		printResult(result)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	stats := orc.Stats()
	slog.Info("gate stopped",
		"requests", stats.RequestsProcessed,
		"blocked", stats.AttacksBlocked,
		"budget_remaining", stats.BudgetRemaining,
	)
	return nil
}

func printResult(result *pipeline.Result) {
	if runFlags.jsonOut {
		out, err := json.Marshal(result)
		if err != nil {
			slog.Error("failed to encode result", "error", err)
			return
		}
		fmt.Println(string(out))
		return
	}

	switch result.Status {
	case "allowed", "template":
		fmt.Printf("[%s] %s\n", result.Status, result.Response)
	default:
		msg := result.Reason
		if result.Refusal != nil {
			msg = result.Refusal.Message + " (ref " + result.Refusal.TicketID + ")"
		}
		fmt.Printf("[%s] %s\n", result.Status, msg)
	}
}

func appendHistory(history []string, text string, max int) []string {
	history = append(history, text)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

// serveMetrics exposes the Prometheus endpoint until the context ends.
func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics endpoint failed", "error", err)
	}
}
