package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guardrail-hq/saturn/pkg/config"
	"guardrail-hq/saturn/pkg/ledger"
)

var verifyFlags struct {
	ledgerPath string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit chain",
	Long: `Replay the audit chain from genesis, recomputing every entry hash and
checking prev-hash linkage.

Exit status is non-zero when a break is found. The first broken entry
index is reported; entries after the break are not examined further.

Examples:
  saturn verify
  saturn verify --ledger /var/lib/saturn/audit.jsonl`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyFlags.ledgerPath, "ledger", "", "ledger file path (default from config)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := verifyFlags.ledgerPath
	if path == "" {
		path = config.LoadOrDefault(cfgFile).Ledger.Path
	}

	res, err := ledger.VerifyFile(path)
	if err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}

	switch {
	case res.Empty:
		fmt.Printf("✓ %s: empty ledger, nothing to verify\n", path)
	case res.OK:
		fmt.Printf("✓ %s: chain intact (%d entries)\n", path, res.Entries)
	default:
		fmt.Printf("✗ %s: chain broken at entry %d: %s\n", path, res.BreakIndex, res.Detail)
		os.Exit(1)
	}
	return nil
}
