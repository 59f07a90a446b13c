package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"asc-manager/core/reconcile"
	"asc-manager/feature/subscriptions"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	applyFile    string
	applyDryRun  bool
	applyYes     bool
	applyWorkers int
	applyJSON    bool
)

// applyCmd reconciles a desired-state file against the remote system.
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile subscriptions with a desired-state file",
	Long: `Reads current state, plans the writes needed to match the desired-state
file, asks for confirmation and executes them.

Only differences are written: running apply twice with the same file issues
no writes the second time. Failures in one territory never stop the others;
the final report lists every item with its outcome.

Examples:
  # Show what would change
  apply -f subscriptions.yaml --dry-run

  # Apply without the interactive prompt
  apply -f subscriptions.yaml --yes`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "subscriptions.yaml", "Desired-state file")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Plan only; report every write as planned")
	applyCmd.Flags().BoolVar(&applyYes, "yes", false, "Auto-confirm writes (non-interactive)")
	applyCmd.Flags().IntVar(&applyWorkers, "workers", 0, "Write workers (default from RECONCILE_WORKERS)")
	applyCmd.Flags().BoolVar(&applyJSON, "json", false, "Print the final report as JSON")
	RootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	desired, err := subscriptions.LoadFile(applyFile)
	if err != nil {
		return err
	}
	records, err := desired.Records()
	if err != nil {
		return err
	}
	dryRun := applyDryRun || desired.DryRun

	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx, stop := signalContext()
	defer stop()

	o := rt.orchestrator(applyWorkers)
	rt.log.Info("Planning reconciliation",
		zap.String("app", desired.AppBundleID),
		zap.Int("subscriptions", len(records)),
		zap.Bool("dry_run", dryRun),
	)
	plan := o.Plan(ctx, desired.AppBundleID, records)
	printPlan(os.Stdout, plan)

	confirmed := false
	switch {
	case dryRun:
		rt.log.Info("Dry-run mode: no changes will be made")
	case plan.Len() == 0:
		rt.log.Info("Nothing to change")
	default:
		confirmed = confirm(fmt.Sprintf("⚠️  %d writes will be sent to App Store Connect.", plan.Len()), applyYes)
		if !confirmed {
			rt.log.Warn("Operation cancelled by user. No changes were made.")
		}
	}

	report := o.Apply(ctx, plan, reconcile.ApplyOptions{DryRun: dryRun, Confirmed: confirmed})
	if applyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(os.Stdout, report)
	}

	if rec := historyRecorder(ctx, rt.cfg, rt.log); rec != nil {
		rec.Keep(ctx, report)
	}
	rt.exportMetrics()

	if report.HasFailures() {
		return fmt.Errorf("%d operations failed", report.Summary.Failed)
	}
	return nil
}
