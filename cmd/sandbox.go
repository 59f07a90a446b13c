package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"asc-manager/feature/sandbox"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sandboxPort   string
	sandboxBudget int
	sandboxWindow time.Duration
	sandboxTiers  int
)

// sandboxCmd serves the App Store Connect simulator over HTTP.
var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Serve an in-memory App Store Connect simulator",
	Long: `Starts an HTTP server that simulates the subscription endpoints of App
Store Connect with 175 territories, tiered price points and a rolling request
budget. Point API_BASE_URL at http://localhost:<port>/v1/ to try apply
without touching a real account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, l, err := loadSettings()
		if err != nil {
			return err
		}
		defer l.Sync()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = sandboxPort
		}

		sim := sandbox.New(sandbox.Options{
			Fixture: sandbox.Fixture{Tiers: sandboxTiers},
			Budget:  sandboxBudget,
			Window:  sandboxWindow,
			Token:   cfg.Server.ApiKey,
			Logger:  l,
		})
		app, err := sim.App()
		if err != nil {
			return err
		}

		go func() {
			l.Info("Starting sandbox", zap.String("addr", cfg.Server.Addr()), zap.Int("budget", sandboxBudget))
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				l.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		l.Info("Shutting down sandbox...",
			zap.Int("requests", len(sim.Requests())),
			zap.Int("mutations", len(sim.Mutations())),
		)
		return app.Shutdown()
	},
}

func init() {
	sandboxCmd.Flags().StringVar(&sandboxPort, "port", "8080", "Port to listen on (default from SERVER_PORT)")
	sandboxCmd.Flags().IntVar(&sandboxBudget, "budget", 350, "Requests accepted per window; 0 disables throttling")
	sandboxCmd.Flags().DurationVar(&sandboxWindow, "window", time.Minute, "Length of the request budget window")
	sandboxCmd.Flags().IntVar(&sandboxTiers, "tiers", 200, "Price tiers per territory")
	RootCmd.AddCommand(sandboxCmd)
}
