package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	deamplog "github.com/nao1215/deamp/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for deamp.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deamp",
		Short: "Point AMP search results at their publishers",
		Long: `deamp rewrites search result pages so that links to AMP proxy pages
point at the publisher's canonical page instead, and hides the AMP badge
shown next to each rewritten result.

Hostnames on the ignore list (see "deamp ignore") are left untouched.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewRewriteCmd())
	cmd.AddCommand(NewCanonicalizeCmd())
	cmd.AddCommand(NewIgnoreCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getBoolFlag reads a flag from the command or, failing that, from the
// root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger creates the logger for a command. Logs go to w, masked by
// the secure handler.
func setupLogger(w io.Writer, verbose, jsonLog bool) *slog.Logger {
	if jsonLog {
		return deamplog.NewSecureJSONLogger(w, verbose)
	}
	return deamplog.NewSecureLogger(w, verbose)
}

// commandLogger builds the logger from the global flags and makes it the
// default.
func commandLogger(cmd *cobra.Command) *slog.Logger {
	logger := setupLogger(cmd.ErrOrStderr(), getBoolFlag(cmd, "verbose"), getBoolFlag(cmd, "log-json"))
	slog.SetDefault(logger)
	return logger
}
