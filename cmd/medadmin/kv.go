package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devrev/medadmin/internal/apierrors"
	"github.com/devrev/medadmin/internal/config"
	"github.com/devrev/medadmin/internal/logging"
	"github.com/devrev/medadmin/internal/pagination"
	"github.com/devrev/medadmin/internal/tenantkv"
	"github.com/spf13/cobra"
)

type kvOptions struct {
	root     *rootOptions
	tenantID string
	timeout  time.Duration
}

func newKVCmd(root *rootOptions) *cobra.Command {
	opts := &kvOptions{root: root}

	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Read and write a tenant's key-value data",
		Long: `Operator access to tenant-scoped keys. Keys are given without the
tenant prefix; values are JSON documents.

Example:
  medadmin kv set --tenant acme settings '{"theme":"dark"}' --ttl 1h
  medadmin kv get --tenant acme settings
  medadmin kv keys --tenant acme 'patient:*'`,
	}

	cmd.PersistentFlags().StringVar(&opts.tenantID, "tenant", "", "tenant ID (required)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout for the store call")
	cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(
		newKVGetCmd(opts),
		newKVSetCmd(opts),
		newKVDelCmd(opts),
		newKVKeysCmd(opts),
	)
	return cmd
}

// withStore opens the configured store for one command invocation.
func (o *kvOptions) withStore(cmd *cobra.Command, fn func(ctx context.Context, kv *tenantkv.Store) error) error {
	cfg, err := config.LoadKV(o.root.configPath)
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

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open key-value store: %w", err)
	}
	defer backend.Close()

	return fn(ctx, tenantkv.New(backend, logger))
}

func newKVGetCmd(opts *kvOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the JSON value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, kv *tenantkv.Store) error {
				raw, found, err := kv.GetRaw(ctx, opts.tenantID, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %q", apierrors.ErrKeyNotFound, args[0])
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return err
			})
		},
	}
}

func newKVSetCmd(opts *kvOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Store a JSON value under a key",
		Long: `Stores a JSON value. Use "-" as the value to read it from stdin.
A positive --ttl makes the key expire; otherwise it persists until deleted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := readJSONArg(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			return opts.withStore(cmd, func(ctx context.Context, kv *tenantkv.Store) error {
				return kv.Set(ctx, opts.tenantID, args[0], value, ttl)
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the key after this long (e.g. 30s, 1h)")
	return cmd
}

func newKVDelCmd(opts *kvOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "del <key>",
		Aliases: []string{"delete"},
		Short:   "Delete a key; deleting an absent key succeeds",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, kv *tenantkv.Store) error {
				return kv.Delete(ctx, opts.tenantID, args[0])
			})
		},
	}
}

func newKVKeysCmd(opts *kvOptions) *cobra.Command {
	var page, perPage int

	cmd := &cobra.Command{
		Use:   "keys [pattern]",
		Short: "List the tenant's keys matching a glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return opts.withStore(cmd, func(ctx context.Context, kv *tenantkv.Store) error {
				keys, err := kv.ListKeys(ctx, opts.tenantID, pattern)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if perPage <= 0 {
					for _, k := range keys {
						fmt.Fprintln(out, k)
					}
					return nil
				}

				w := pagination.NewWindow(page, perPage, len(keys), perPage, 0)
				for _, k := range pagination.Slice(w, keys) {
					fmt.Fprintln(out, k)
				}
				fmt.Fprintf(out, "page %d of %d: %s\n", w.Page, w.TotalPages(), formatLabels(w.Labels()))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page to print when --per-page is set")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "keys per page; 0 prints every key")
	return cmd
}

func readJSONArg(stdin io.Reader, arg string) (json.RawMessage, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("failed to read value from stdin: %w", err)
		}
	}
	data = []byte(strings.TrimSpace(string(data)))
	if !json.Valid(data) {
		return nil, errors.New("value must be valid JSON (quote strings, e.g. '\"text\"')")
	}
	return json.RawMessage(data), nil
}

func formatLabels(labels []pagination.Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.String()
	}
	return strings.Join(parts, " ")
}
