package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:           "inventory",
		Short:         "Track a personal Pokemon card collection, lending and trades",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides INVENTORY_DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		statsCmd,
		cardsCmd,
		lendCmd,
		returnCmd,
		overdueCmd,
		tradeCmd,
		exportCmd,
		importCmd,
		searchCmd,
		activityCmd,
		remindCmd,
		pricesCmd,
		clearCmd,
		migrateCmd,
		metricsCmd,
	)
}

// withApp opens the store for the duration of one command. The context is
// cancelled on SIGINT or SIGTERM.
func withApp(run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(dbPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, a, cmd, args)
	}
}
