package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd inspects kept runs.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past reconciliation runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	Long:  `Lists runs from the database when RECORD_RUNS is on, otherwise from the report archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, l, err := loadSettings()
		if err != nil {
			return err
		}
		defer l.Sync()
		ctx := context.Background()

		if cfg.History.RecordRuns {
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			runs, err := store.Recent(ctx, historyLimit)
			if err != nil {
				return err
			}
			printRuns(os.Stdout, runs)
			return nil
		}

		archive, err := openArchive(cfg, l)
		if err != nil {
			return err
		}
		entries, err := archive.List(ctx)
		if err != nil {
			return err
		}
		printArchive(os.Stdout, entries[:min(len(entries), max(historyLimit, 0))])
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print an archived report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, l, err := loadSettings()
		if err != nil {
			return err
		}
		defer l.Sync()

		archive, err := openArchive(cfg, l)
		if err != nil {
			return err
		}
		report, err := archive.Load(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		printReport(os.Stdout, report)
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to list")
	historyCmd.AddCommand(historyListCmd, historyShowCmd)
	RootCmd.AddCommand(historyCmd)
}
