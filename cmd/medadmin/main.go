// Command medadmin serves the tenant-scoped key-value API and runs its
// operational tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "medadmin",
		Short: "Multi-tenant administration backend",
		Long: `medadmin serves tenant-scoped key-value storage over HTTP, keeps the
tenant registry and applies the PostgreSQL schema migrations the
application depends on.

Connection strings come from REDIS_URL and DATABASE_URL; everything else
from an optional config file or MEDADMIN_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newKVCmd(opts),
		newTenantsCmd(opts),
		newPagesCmd(),
	)
	return cmd
}
