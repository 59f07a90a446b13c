package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"asc-manager/feature/subscriptions"

	"github.com/spf13/cobra"
)

var (
	initFile  string
	initForce bool
)

// initCmd writes an example desired-state file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example desired-state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !initForce {
			if _, err := os.Stat(initFile); err == nil {
				return fmt.Errorf("%s already exists; use --force to overwrite", initFile)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		if err := os.WriteFile(initFile, subscriptions.ExampleConfig(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", initFile, err)
		}
		fmt.Printf("%s wrote %s\n", green("✓"), initFile)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&initFile, "file", "f", "subscriptions.yaml", "File to create")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	RootCmd.AddCommand(initCmd)
}
