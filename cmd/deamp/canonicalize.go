package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/deamp/internal/canonical"
	"github.com/nao1215/deamp/internal/config"
	"github.com/spf13/cobra"
)

// errCanonicalizeFailed is returned when at least one URL could not be
// canonicalized.
var errCanonicalizeFailed = errors.New("some URLs could not be canonicalized")

// NewCanonicalizeCmd creates the canonicalize command.
func NewCanonicalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "canonicalize [url]...",
		Aliases: []string{"canon"},
		Short:   "Print the canonical form of AMP URLs",
		Long: `Canonicalize strips the AMP marker from each URL and prints the result,
one per line. The marker is removed as a leading or trailing path segment
and as a query parameter name or value.

With no arguments, URLs are read from standard input, one per line.

Examples:
  deamp canonicalize https://example.com/news/amp/
  # https://example.com/news/

  deamp canonicalize "https://example.com/article?amp=1&id=7"
  # https://example.com/article?id=7

  cat urls.txt | deamp canonicalize`,
		Args: cobra.ArbitraryArgs,
		RunE: runCanonicalizeCmd,
	}

	cmd.Flags().String("segment", config.DefaultSegment, "Proxy marker to strip")

	return cmd
}

// runCanonicalizeCmd executes the canonicalize command.
func runCanonicalizeCmd(cmd *cobra.Command, args []string) error {
	logger := commandLogger(cmd)

	segment, err := cmd.Flags().GetString("segment")
	if err != nil {
		return err
	}
	if err := config.ValidateSegment(segment); err != nil {
		return err
	}

	c := canonical.New(canonical.WithSegment(segment), canonical.WithLogger(logger))

	urls := args
	if len(urls) == 0 {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				urls = append(urls, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read standard input: %w", err)
		}
	}

	failed := 0
	for _, raw := range urls {
		out, err := c.Canonicalize(raw)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", raw, err)
			failed++
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errCanonicalizeFailed, failed, len(urls))
	}
	return nil
}
