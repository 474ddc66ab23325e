package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"guardrail-hq/saturn/pkg/cli"
	"guardrail-hq/saturn/pkg/config"
	"guardrail-hq/saturn/pkg/ledger"
	ledstorage "guardrail-hq/saturn/pkg/ledger/storage"
)

var auditFlags struct {
	decision string
	since    string
	limit    int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query recent audit entries",
	Long: `Print recent audit entries, newest first.

When a SQLite index is configured, queries run against it; otherwise the
JSONL chain file is read directly.

Examples:
  saturn audit --limit 20
  saturn audit --decision blocked --since 2026-08-01T00:00:00Z`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditFlags.decision, "decision", "", "filter by decision (allowed, template, blocked, error)")
	auditCmd.Flags().StringVar(&auditFlags.since, "since", "", "only entries at or after this RFC3339 time")
	auditCmd.Flags().IntVar(&auditFlags.limit, "limit", 20, "maximum entries to print")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg := config.LoadOrDefault(cfgFile)

	var since time.Time
	if auditFlags.since != "" {
		t, err := time.Parse(time.RFC3339, auditFlags.since)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		since = t
	}

	entries, err := loadEntries(cfg, since)
	if err != nil {
		return err
	}

	formatter := cli.NewFormatter(cli.FormatJSON)
	for _, e := range entries {
		if err := formatter.FormatTo(os.Stdout, e); err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
	}
	return nil
}

func loadEntries(cfg *config.Config, since time.Time) ([]*ledger.Entry, error) {
	// Indexed path: filters are pushed into SQL.
	if cfg.Ledger.IndexPath != "" {
		idx, err := ledstorage.NewSQLiteIndex(cfg.Ledger.IndexPath)
		if err != nil {
			return nil, fmt.Errorf("open ledger index: %w", err)
		}
		defer idx.Close()

		return idx.Find(ledstorage.Query{
			Decision: auditFlags.decision,
			Since:    since,
			Limit:    auditFlags.limit,
		})
	}

	// Fallback: scan the chain file and filter in memory.
	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	all, err := led.Entries(0)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var out []*ledger.Entry
	for i := len(all) - 1; i >= 0 && len(out) < auditFlags.limit; i-- {
		e := all[i]
		if auditFlags.decision != "" && e.Decision != auditFlags.decision {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}
