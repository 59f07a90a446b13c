package cmd

import (
	"os"

	"asc-manager/feature/subscriptions"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	checkFile   string
	checkBundle string
)

// checkCmd reports what each subscription still lacks before submission.
var checkCmd = &cobra.Command{
	Use:   "check [product-id...]",
	Short: "Report subscription readiness",
	Long: `Lists period, localizations, prices and availability per subscription.
A subscription missing any of them stays in MISSING_METADATA.

Without product ids, the subscriptions of the desired-state file are
checked; with --bundle, every subscription of that app.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bundleID := checkBundle
		productIDs := args
		if bundleID == "" {
			desired, err := subscriptions.LoadFile(checkFile)
			if err != nil {
				return err
			}
			bundleID = desired.AppBundleID
			if len(productIDs) == 0 {
				productIDs = lo.Map(desired.Subscriptions, func(s subscriptions.SubscriptionConfig, _ int) string { return s.ProductID })
			}
		}

		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.log.Sync()

		ctx, stop := signalContext()
		defer stop()

		results, err := rt.orchestrator(0).Check(ctx, bundleID, productIDs)
		if err != nil {
			return err
		}
		printReadiness(os.Stdout, results)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkFile, "file", "f", "subscriptions.yaml", "Desired-state file")
	checkCmd.Flags().StringVar(&checkBundle, "bundle", "", "Check every subscription of this app instead")
	RootCmd.AddCommand(checkCmd)
}
