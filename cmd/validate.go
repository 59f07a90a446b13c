package cmd

import (
	"fmt"

	"asc-manager/feature/subscriptions"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var validateFile string

// validateCmd checks a desired-state file without contacting the remote system.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a desired-state file offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		desired, err := subscriptions.LoadFile(validateFile)
		if err != nil {
			return err
		}
		records, err := desired.Records()
		if err != nil {
			return err
		}
		offers := lo.SumBy(records, func(r subscriptions.Record) int { return len(r.Offers) })
		fmt.Printf("%s %s: %d subscriptions, %d offers for %s\n",
			green("✓"), validateFile, len(records), offers, desired.AppBundleID)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "subscriptions.yaml", "Desired-state file")
	RootCmd.AddCommand(validateCmd)
}
