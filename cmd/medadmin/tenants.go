package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/devrev/medadmin/internal/config"
	"github.com/devrev/medadmin/internal/logging"
	"github.com/devrev/medadmin/internal/migrate"
	"github.com/devrev/medadmin/internal/store"
	"github.com/devrev/medadmin/internal/tenants"
	"github.com/spf13/cobra"
)

// openTenantRepository is a variable so tests can substitute an in-memory
// repository. The returned func releases the connection pool.
var openTenantRepository = func(ctx context.Context, cfg *config.Config) (tenants.Repository, func(), error) {
	pool, err := migrate.Open(ctx, cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MinConnections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return tenants.NewPostgresRepository(pool), pool.Close, nil
}

type tenantsOptions struct {
	root    *rootOptions
	timeout time.Duration
}

func newTenantsCmd(root *rootOptions) *cobra.Command {
	opts := &tenantsOptions{root: root}

	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage the tenant registry",
		Long: `Registers tenants in PostgreSQL and changes their status. The registry
does not gate key-value access.

Example:
  medadmin tenants create acme --name "Acme Clinic"
  medadmin tenants suspend acme
  medadmin tenants list`,
	}

	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout for the database call")

	cmd.AddCommand(
		newTenantsCreateCmd(opts),
		newTenantsGetCmd(opts),
		newTenantsListCmd(opts),
		newTenantsStatusCmd(opts, "suspend", tenants.StatusSuspended),
		newTenantsStatusCmd(opts, "activate", tenants.StatusActive),
		newTenantsDeleteCmd(opts),
	)
	return cmd
}

// withService opens the registry for one command invocation.
func (o *tenantsOptions) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *tenants.Service) error) error {
	cfg, err := config.LoadDatabase(o.root.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewStderr(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	repo, closeRepo, err := openTenantRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	cache := store.NewMemoryStore(cfg.Tenants.CacheSize, logger)
	defer cache.Close()

	return fn(ctx, tenants.NewService(repo, cache, cfg.Tenants.CacheTTL, logger))
}

func newTenantsCreateCmd(opts *tenantsOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create <tenant-id>",
		Short: "Register a new active tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *tenants.Service) error {
				tenant, err := svc.Create(ctx, args[0], name)
				if err != nil {
					return err
				}
				return writeTenantJSON(cmd.OutOrStdout(), tenant)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newTenantsGetCmd(opts *tenantsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Print a tenant as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *tenants.Service) error {
				tenant, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return writeTenantJSON(cmd.OutOrStdout(), tenant)
			})
		},
	}
}

func newTenantsListCmd(opts *tenantsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *tenants.Service) error {
				all, err := svc.List(ctx)
				if err != nil {
					return err
				}
				return writeTenantTable(cmd.OutOrStdout(), all)
			})
		},
	}
}

func newTenantsStatusCmd(opts *tenantsOptions, use string, status tenants.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <tenant-id>",
		Short: fmt.Sprintf("Set a tenant's status to %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *tenants.Service) error {
				tenant, err := svc.SetStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				return writeTenantJSON(cmd.OutOrStdout(), tenant)
			})
		},
	}
}

func newTenantsDeleteCmd(opts *tenantsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Remove a tenant from the registry; its keys are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *tenants.Service) error {
				return svc.Delete(ctx, args[0])
			})
		},
	}
}

func writeTenantJSON(out io.Writer, tenant *tenants.Tenant) error {
	return json.NewEncoder(out).Encode(tenant)
}

func writeTenantTable(out io.Writer, all []*tenants.Tenant) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tNAME\tSTATUS\tCREATED AT")
	for _, t := range all {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.TenantID, t.Name, t.Status, t.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
