package main

import (
	"context"
	"fmt"
	"io"

	"github.com/nao1215/deamp/internal/config"
	"github.com/nao1215/deamp/internal/settings"
	"github.com/spf13/cobra"
)

// NewIgnoreCmd creates the ignore command and its subcommands.
func NewIgnoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ignore",
		Short: "Manage hostnames that are never rewritten",
		Long: `Ignore manages the stored list of hostnames whose results are left
pointing at the AMP proxy. The list is kept in a SQLite database in the XDG
data directory and is shared by every deamp process; a running
"deamp rewrite" picks up changes made here.

Hostnames are stored lowercased and in ASCII form. A URL is reduced to its
hostname.

Examples:
  deamp ignore add example.com https://news.example.org/story
  deamp ignore list
  deamp ignore remove example.com
  deamp ignore clear`,
	}

	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Directory of the settings database")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the ignored hostnames",
			Args:  cobra.NoArgs,
			RunE:  runIgnoreList,
		},
		&cobra.Command{
			Use:   "add <hostname>...",
			Short: "Add hostnames to the ignore list",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runIgnoreAdd,
		},
		&cobra.Command{
			Use:     "remove <hostname>...",
			Aliases: []string{"rm"},
			Short:   "Remove hostnames from the ignore list",
			Args:    cobra.MinimumNArgs(1),
			RunE:    runIgnoreRemove,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the ignore list",
			Args:  cobra.NoArgs,
			RunE:  runIgnoreClear,
		},
	)

	return cmd
}

// withStore opens the settings database named by --db-dir, runs fn and
// closes the database.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *settings.Store) error) error {
	logger := commandLogger(cmd)

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	opts := settings.DefaultOptions()
	opts.Logger = logger
	store, err := settings.Open(dbDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open settings database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close settings database", "error", err)
		}
	}()

	logger.Debug("settings database opened", "path", store.Path())
	return fn(cmd.Context(), store)
}

func runIgnoreList(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
		hosts, err := store.IgnoredHostnames(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(hosts) == 0 {
			fmt.Fprintln(out, "No ignored hostnames.")
			return nil
		}
		printHosts(out, hosts)

		if getBoolFlag(cmd, "verbose") {
			updated, err := store.UpdatedAt(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Last updated: %s\n", updated.Local().Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	})
}

func runIgnoreAdd(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
		var hosts []string
		for _, arg := range args {
			var err error
			hosts, err = store.AddIgnoredHostname(ctx, arg)
			if err != nil {
				return fmt.Errorf("cannot ignore %q: %w", arg, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ignoring %d hostname(s):\n", len(hosts))
		printHosts(cmd.OutOrStdout(), hosts)
		return nil
	})
}

func runIgnoreRemove(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
		var hosts []string
		for _, arg := range args {
			var err error
			hosts, err = store.RemoveIgnoredHostname(ctx, arg)
			if err != nil {
				return fmt.Errorf("cannot remove %q: %w", arg, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ignoring %d hostname(s):\n", len(hosts))
		printHosts(cmd.OutOrStdout(), hosts)
		return nil
	})
}

func runIgnoreClear(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
		if err := store.ClearIgnoredHostnames(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Ignore list cleared.")
		return nil
	})
}

func printHosts(w io.Writer, hosts []string) {
	for _, h := range hosts {
		fmt.Fprintf(w, "  %s\n", h)
	}
}
