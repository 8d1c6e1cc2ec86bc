// Command bookingctl is the operator tool for booking-service: schema
// migrations, integrity checks, health checks and local test helpers.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the salon booking service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", config.String("DATABASE_URL", ""), "Postgres connection string")

	root.AddCommand(migrateCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(healthCmd())
	root.AddCommand(simulateDepositCmd())
	root.AddCommand(tokenCmd())
	return root
}

func openPool(ctx context.Context, cmd *cobra.Command) (*db.Pool, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return db.Open(ctx, url, db.PoolConfig{MaxConns: 2})
}
