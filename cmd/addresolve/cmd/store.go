package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/addresolve/internal/address"
	"github.com/Aman-CERP/addresolve/internal/output"
	"github.com/Aman-CERP/addresolve/internal/provider"
)

func newStoreCmd() *cobra.Command {
	var storePath string

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the known-address database",
		Long: `Manage the SQLite database behind the 'stored' provider.

The database path comes from providers.stored.path unless --path is given.`,
		Example: `  # Import confirmed addresses (same layout as the dictionary file)
  addresolve store import addresses.yaml --tenant acme

  # Look up how an item would be answered
  addresolve store lookup "Ленина 5" --tenant acme`,
	}

	cmd.PersistentFlags().StringVar(&storePath, "path", "", "Database path (default providers.stored.path)")

	cmd.AddCommand(newStoreImportCmd(&storePath))
	cmd.AddCommand(newStoreLookupCmd(&storePath))
	cmd.AddCommand(newStoreDeleteCmd(&storePath))
	cmd.AddCommand(newStoreCountCmd(&storePath))

	return cmd
}

// openStore opens the database named by --path or the configuration.
func openStore(path string) (*provider.Store, error) {
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Providers.Stored.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no known-address database configured: set providers.stored.path or pass --path")
	}
	return provider.OpenStore(path)
}

func newStoreImportCmd(storePath *string) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import addresses from a YAML file",
		Long: `Import addresses from a YAML file with the layout

  entries:
    - key: msk-lenina-5
      value: г Москва, ул Ленина, д 5
      aliases: [Ленина 5]
      city: Москва
      overrides:
        postal_code: "101000"

Every value and alias becomes a lookup key. Existing keys are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer store.Close()
			return runStoreImport(cmd.Context(), output.New(cmd.OutOrStdout()), store, args[0], tenant)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to import into (default: shared)")

	return cmd
}

func runStoreImport(ctx context.Context, out *output.Writer, store *provider.Store, path, tenant string) error {
	entries, err := provider.ReadEntries(path)
	if err != nil {
		return err
	}

	var imported, skipped int
	for i, e := range entries {
		if strings.TrimSpace(e.Value) == "" {
			skipped++
			out.Progress(i+1, len(entries), "Importing addresses")
			continue
		}
		addr := e.Address()
		if addr.Key == "" {
			addr.Key = address.DeriveKey(addr.Value)
		}
		if err := store.Save(ctx, tenant, addr, e.Aliases, e.Overrides); err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e.Value, err)
		}
		imported++
		out.Progress(i+1, len(entries), "Importing addresses")
	}

	out.Successf("Imported %d addresses into %s", imported, store.Path())
	if skipped > 0 {
		out.Warningf("Skipped %d entries without a value", skipped)
	}
	return nil
}

func newStoreLookupCmd(storePath *string) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "lookup <query>",
		Short: "Look up a query in the known-address database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			entry, err := store.Lookup(cmd.Context(), tenant, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if entry == nil {
				output.New(cmd.OutOrStdout()).Warning("Not found")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entry.Address)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to search first")

	return cmd
}

func newStoreDeleteCmd(storePath *string) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "delete <query>",
		Short: "Delete one lookup key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			query := strings.Join(args, " ")
			ok, err := store.Delete(cmd.Context(), tenant, query)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if !ok {
				out.Warningf("No entry for %q", query)
				return nil
			}
			out.Successf("Deleted %q", query)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant the key belongs to (default: shared)")

	return cmd
}

func newStoreCountCmd(storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of lookup keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}
