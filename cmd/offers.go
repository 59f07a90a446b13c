package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	offersBundle string
	offersYes    bool
)

// offersCmd groups introductory offer maintenance.
var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "List or delete introductory offers",
}

var offersListCmd = &cobra.Command{
	Use:   "list <product-id>",
	Short: "List the introductory offers of a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.log.Sync()

		ctx, stop := signalContext()
		defer stop()

		offers, err := rt.orchestrator(0).Offers(ctx, offersBundle, args[0])
		if err != nil {
			return err
		}
		printOffers(os.Stdout, offers)
		return nil
	},
}

var offersDeleteCmd = &cobra.Command{
	Use:   "delete <offer-id>",
	Short: "Delete one introductory offer",
	Long: `Deletes an introductory offer by id. apply never deletes offers, so this
is how an offer blocking a new date range is removed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.log.Sync()

		if !confirm(fmt.Sprintf("⚠️  Offer %s will be deleted.", args[0]), offersYes) {
			rt.log.Warn("Operation cancelled by user. No changes were made.")
			return nil
		}

		ctx, stop := signalContext()
		defer stop()
		if err := rt.orchestrator(0).DeleteOffer(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s deleted offer %s\n", green("✓"), args[0])
		return nil
	},
}

func init() {
	offersListCmd.Flags().StringVar(&offersBundle, "bundle", "", "App bundle id")
	_ = offersListCmd.MarkFlagRequired("bundle")
	offersDeleteCmd.Flags().BoolVar(&offersYes, "yes", false, "Auto-confirm the deletion")

	offersCmd.AddCommand(offersListCmd, offersDeleteCmd)
	RootCmd.AddCommand(offersCmd)
}
