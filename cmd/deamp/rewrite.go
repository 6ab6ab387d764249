package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/deamp/internal/canonical"
	"github.com/nao1215/deamp/internal/config"
	"github.com/nao1215/deamp/internal/fetch"
	"github.com/nao1215/deamp/internal/model"
	"github.com/nao1215/deamp/internal/pipeline"
	"github.com/nao1215/deamp/internal/report"
	"github.com/nao1215/deamp/internal/rewrite"
	"github.com/nao1215/deamp/internal/settings"
	"github.com/spf13/cobra"
)

// watchInterval is how often a running rewrite checks the settings
// database for changes made by other processes.
const watchInterval = 500 * time.Millisecond

// errPagesFailed is returned when at least one page could not be processed.
var errPagesFailed = errors.New("some pages could not be processed")

// NewRewriteCmd creates the rewrite command.
func NewRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite [file|url|-]...",
		Short: "Rewrite AMP result links to their canonical pages",
		Long: `Rewrite loads search result pages, points every AMP result link at the
publisher's canonical page, hides the AMP badges and writes the resulting
HTML. Each input is a file path, an http(s) URL that is fetched, or "-" for
standard input.

Hostnames on the stored ignore list (see "deamp ignore") and those given
with --ignore are left untouched. While pages are processed, changes to the
stored list made by another deamp process are applied to pages still open.

Fragments given with --append are inserted at the end of each page once it
has loaded, like results loaded on scroll; every insertion triggers another
rewrite pass.

A report listing the outcome of every link is written to standard error,
or to --report-file.

Examples:
  # Rewrite a saved results page to standard output
  deamp rewrite results.html > clean.html

  # Fetch a results page and write it into a directory
  deamp rewrite -O out "https://www.google.com/search?q=news"

  # Process several pages, ignoring one more hostname for this run
  deamp rewrite -O out --ignore example.com page1.html page2.html

  # Markdown report of a page read from standard input
  cat results.html | deamp rewrite --base-url "https://www.google.com/search?q=news" \
    --report markdown --report-file report.md -

Configuration file (.deamp) example:
  segment: amp
  ignore:
    - example.com
  sites:
    www.google.com:
      cookie: "CONSENT=YES+cb"`,
		Args: cobra.ArbitraryArgs,
		RunE: runRewriteCmd,
	}

	// Ignore list
	cmd.Flags().StringSliceP("ignore", "i", nil,
		"Hostname to leave untouched for this run (repeatable)")
	cmd.Flags().Bool("no-store", false,
		"Do not use the stored ignore list")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the settings database")

	// Page handling
	cmd.Flags().StringSliceP("append", "a", nil,
		"HTML fragment file inserted into each page after load (repeatable)")
	cmd.Flags().String("base-url", "",
		"Page address used to resolve relative links in files and standard input")
	cmd.Flags().String("segment", config.DefaultSegment,
		"Proxy marker stripped from URLs")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of pages processed concurrently")

	// Output
	cmd.Flags().StringP("output", "o", "",
		"Write the rewritten page to this file (single input)")
	cmd.Flags().StringP("output-dir", "O", "",
		"Write one rewritten page per input into this directory")
	cmd.Flags().BoolP("minify", "m", false,
		"Minify the rewritten HTML")

	// Report
	cmd.Flags().StringP("report", "r", config.ReportText,
		"Report format: text, json or markdown")
	cmd.Flags().String("report-file", "",
		"Write the report to this file (creates directories if needed)")

	// Fetching
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of each page fetch")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy for fetches (e.g., 127.0.0.1:1080)")
	cmd.Flags().String("user-agent", "",
		"User-Agent sent with fetches (default: a current browser)")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum page size in bytes")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .deamp in current or home directory)")

	return cmd
}

// runRewriteCmd executes the rewrite command.
func runRewriteCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := commandLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runRewrite(ctx, cmd, cfg, logger)
}

// buildConfig creates a Config from cobra command flags and the config file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	if cfg.IgnoreHosts, err = flags.GetStringSlice("ignore"); err != nil {
		return nil, err
	}
	if cfg.NoStore, err = flags.GetBool("no-store"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.AppendFiles, err = flags.GetStringSlice("append"); err != nil {
		return nil, err
	}
	if cfg.BaseURL, err = flags.GetString("base-url"); err != nil {
		return nil, err
	}
	if cfg.Segment, err = flags.GetString("segment"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.Output, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.Minify, err = flags.GetBool("minify"); err != nil {
		return nil, err
	}
	if cfg.ReportFormat, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.JSONLog = getBoolFlag(cmd, "log-json")

	// An explicit config path must exist; otherwise a missing file just
	// means no file.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(f)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	cfg.Inputs = args

	return cfg, nil
}

// runRewrite processes every input and writes the report.
func runRewrite(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting rewrite",
		"inputs", cfg.Inputs,
		"batchSize", cfg.BatchSize,
		"noStore", cfg.NoStore,
	)

	source, closeSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	client, err := newFetchClient(cfg, logger)
	if err != nil {
		return err
	}

	rewriter := newRewriter(cfg, logger)

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return pipeline.DefaultPipeline(source,
				[]pipeline.Option{pipeline.WithLogger(logger)},
				pipeline.WithPipelineFetcher(client),
				pipeline.WithPipelineStdin(cmd.InOrStdin()),
				pipeline.WithPipelineStdout(cmd.OutOrStdout()),
				pipeline.WithPipelineBaseURL(cfg.BaseURL),
				pipeline.WithPipelineMaxBodySize(cfg.MaxBodySize),
				pipeline.WithPipelineRewriter(rewriter),
				pipeline.WithPipelineAppendFiles(cfg.AppendFiles),
				pipeline.WithPipelineMinify(cfg.Minify),
				pipeline.WithPipelineOutput(cfg.Output),
				pipeline.WithPipelineOutputDir(cfg.OutputDir),
				pipeline.WithPipelineLogger(logger),
			)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	pages, err := bp.ProcessBatch(ctx, cfg.Inputs)
	if err != nil {
		return err
	}
	logger.Info("rewrite finished",
		"pages", len(pages),
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)

	if err := writeReport(cmd, cfg, pages); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if failed := failedPages(pages); failed > 0 {
		return fmt.Errorf("%w: %d of %d", errPagesFailed, failed, len(pages))
	}
	return nil
}

// failedPages returns the number of pages that did not complete.
func failedPages(pages []*model.Page) int {
	return report.Summarize(pages).Failed
}

// openSource returns the ignore-list source of the run: the stored list
// (watched for changes from other processes) or an empty one with
// --no-store, overlaid with the run's extra hostnames.
func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*settings.Overlay, func(), error) {
	if cfg.NoStore {
		return settings.NewOverlay(settings.NewStatic(), cfg.IgnoreHosts...), func() {}, nil
	}

	opts := settings.DefaultOptions()
	opts.Logger = logger
	store, err := settings.Open(cfg.DBDir, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	logger.Debug("settings database opened", "path", store.Path())

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := store.Watch(watchCtx, watchInterval); err != nil {
			logger.Warn("stopped watching the ignore list", "error", err)
		}
	}()

	closeFn := func() {
		cancel()
		<-done
		if err := store.Close(); err != nil {
			logger.Warn("failed to close settings database", "error", err)
		}
	}

	return settings.NewOverlay(store, cfg.IgnoreHosts...), closeFn, nil
}

// newFetchClient creates the client used for URL inputs, applying the
// per-site settings of the config file.
func newFetchClient(cfg *config.Config, logger *slog.Logger) (*fetch.Client, error) {
	opts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithLogger(logger),
	}
	if cfg.ProxyAddress != "" {
		opts = append(opts, fetch.WithProxy(cfg.ProxyAddress))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, fetch.WithUserAgent(cfg.UserAgent))
	}
	if cfg.File != nil {
		file := cfg.File
		opts = append(opts, fetch.WithSites(func(host string) fetch.Site {
			sc := file.GetSiteConfig(host)
			return fetch.Site{
				Cookie:    sc.Cookie,
				Headers:   sc.Headers,
				UserAgent: sc.UserAgent,
			}
		}))
	}

	client, err := fetch.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch client: %w", err)
	}
	return client, nil
}

// newRewriter creates the rewriter shared by every page of the run.
func newRewriter(cfg *config.Config, logger *slog.Logger) *rewrite.Rewriter {
	markers := rewrite.DefaultMarkers()
	if cfg.File != nil {
		markers = cfg.File.Markers.Merge(markers)
	}
	return rewrite.New(
		rewrite.WithMarkers(markers),
		rewrite.WithCanonicalizer(canonical.New(
			canonical.WithSegment(cfg.Segment),
			canonical.WithLogger(logger),
		)),
		rewrite.WithLogger(logger),
	)
}

// writeReport writes the report in the requested format. With
// --report-file the report goes to the file and a text summary to
// standard error.
func writeReport(cmd *cobra.Command, cfg *config.Config, pages []*model.Page) error {
	if cfg.ReportFile == "" {
		_, err := newReportWriter(cfg.ReportFormat, cmd.ErrOrStderr(), cfg.Verbose).Write(pages)
		return err
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	// Reports may carry signed URLs; keep them private to the owner.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := report.NewMultiWriter(
		newReportWriter(cfg.ReportFormat, f, cfg.Verbose),
		report.NewSimpleWriter(cmd.ErrOrStderr()),
	)
	_, err = w.Write(pages)
	return err
}

// newReportWriter returns the writer for format.
func newReportWriter(format string, w io.Writer, verbose bool) report.Writer {
	switch format {
	case config.ReportJSON:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case config.ReportMarkdown:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(verbose))
	}
}
