// Command bookingctl is an operator tool for the booking database: schema
// migration, availability seeding, slot inspection and dev tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the pet-services booking store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", "", "postgres URL (defaults to $DATABASE_URL)")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newAvailabilityCmd())
	root.AddCommand(newSlotsCmd())
	root.AddCommand(newSummaryCmd())
	root.AddCommand(newRatesCmd())
	root.AddCommand(newTokenCmd())
	return root
}
