package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify"
	mincss "github.com/tdewolff/minify/css"
	minhtml "github.com/tdewolff/minify/html"

	"github.com/nao1215/deamp/internal/config"
	"github.com/nao1215/deamp/internal/dom"
	"github.com/nao1215/deamp/internal/engine"
	"github.com/nao1215/deamp/internal/fetch"
	"github.com/nao1215/deamp/internal/model"
	"github.com/nao1215/deamp/internal/rewrite"
)

// StdinSource is the source name that reads the page from standard input.
const StdinSource = "-"

// Fetcher downloads pages given as URLs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// isURL reports whether source is an http or https URL.
func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// LoadStep reads the page from a file, a URL or standard input.
type LoadStep struct {
	fetcher     Fetcher
	stdin       io.Reader
	baseURL     string
	maxBodySize int64
	logger      *slog.Logger
}

// LoadStepOption configures a LoadStep.
type LoadStepOption func(*LoadStep)

// WithFetcher sets the fetcher used for URL inputs.
func WithFetcher(f Fetcher) LoadStepOption {
	return func(s *LoadStep) {
		s.fetcher = f
	}
}

// WithStdin sets the reader used for the "-" input.
func WithStdin(r io.Reader) LoadStepOption {
	return func(s *LoadStep) {
		s.stdin = r
	}
}

// WithBaseURL sets the page address of file and stdin inputs, against
// which relative links are resolved.
func WithBaseURL(u string) LoadStepOption {
	return func(s *LoadStep) {
		s.baseURL = u
	}
}

// WithLoadMaxBodySize limits the size of file and stdin inputs.
func WithLoadMaxBodySize(n int64) LoadStepOption {
	return func(s *LoadStep) {
		s.maxBodySize = n
	}
}

// WithLoadLogger sets a custom logger for the load step.
func WithLoadLogger(logger *slog.Logger) LoadStepOption {
	return func(s *LoadStep) {
		s.logger = logger
	}
}

// NewLoadStep creates a new load step.
func NewLoadStep(opts ...LoadStepOption) *LoadStep {
	s := &LoadStep{
		stdin:       os.Stdin,
		maxBodySize: config.DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *LoadStep) Name() string {
	return "load"
}

// Do executes the load step.
func (s *LoadStep) Do(ctx context.Context, job *Job) error {
	page := job.Page

	switch {
	case page.Source == StdinSource:
		raw, err := s.readLimited(s.stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		page.Raw = raw
		page.URL = s.baseURL

	case isURL(page.Source):
		if s.fetcher == nil {
			return fmt.Errorf("%w: %s", ErrNoFetcher, page.Source)
		}
		fetched, err := s.fetcher.Fetch(ctx, page.Source)
		if err != nil {
			return err
		}
		page.Raw = fetched.Body
		page.URL = fetched.URL

	default:
		f, err := os.Open(page.Source)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", page.Source, err)
		}
		defer f.Close()

		raw, err := s.readLimited(f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", page.Source, err)
		}
		page.Raw = raw
		page.URL = s.baseURL
	}

	s.logger.Debug("page loaded",
		"source", page.Source,
		"url", page.URL,
		"bytes", len(page.Raw),
	)
	return nil
}

func (s *LoadStep) readLimited(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, s.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > s.maxBodySize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrInputTooLarge, s.maxBodySize)
	}
	return raw, nil
}

// ParseStep parses the loaded page into a document that is still loading,
// the state a results page is in when the rewriter first sees it.
type ParseStep struct{}

// NewParseStep creates a new parse step.
func NewParseStep() *ParseStep {
	return &ParseStep{}
}

// Name returns the step name.
func (s *ParseStep) Name() string {
	return "parse"
}

// Do executes the parse step.
func (s *ParseStep) Do(_ context.Context, job *Job) error {
	doc, err := dom.Parse(bytes.NewReader(job.Page.Raw), job.Page.URL, dom.WithReadyState(dom.Loading))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", job.Page.Source, err)
	}
	job.Doc = doc
	return nil
}

// RewriteStep starts an engine on the document, then completes loading so
// the first pass runs. Every pass is recorded on the page.
type RewriteStep struct {
	source   engine.Source
	rewriter *rewrite.Rewriter
	logger   *slog.Logger
}

// RewriteStepOption configures a RewriteStep.
type RewriteStepOption func(*RewriteStep)

// WithRewriter sets the rewriter shared by the engines of all pages.
func WithRewriter(r *rewrite.Rewriter) RewriteStepOption {
	return func(s *RewriteStep) {
		s.rewriter = r
	}
}

// WithRewriteLogger sets a custom logger for the rewrite step.
func WithRewriteLogger(logger *slog.Logger) RewriteStepOption {
	return func(s *RewriteStep) {
		s.logger = logger
	}
}

// NewRewriteStep creates a rewrite step reading the ignore list from source.
func NewRewriteStep(source engine.Source, opts ...RewriteStepOption) *RewriteStep {
	s := &RewriteStep{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rewriter == nil {
		s.rewriter = rewrite.New(rewrite.WithLogger(s.logger))
	}
	return s
}

// Name returns the step name.
func (s *RewriteStep) Name() string {
	return "rewrite"
}

// Do executes the rewrite step.
func (s *RewriteStep) Do(ctx context.Context, job *Job) error {
	if job.Doc == nil {
		return ErrNoDocument
	}

	page := job.Page
	logger := s.logger.With("source", page.Source)
	eng := engine.New(job.Doc, s.source,
		engine.WithRewriter(s.rewriter),
		engine.WithLogger(logger),
		engine.WithOnPass(func(r engine.PassReport) {
			page.RecordPass(r.Ignored, r.Result.Outcomes)
			logger.Debug("pass complete",
				"trigger", r.Trigger,
				"rewritten", r.Result.Count(model.StatusRewritten),
			)
		}),
	)
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	job.Engine = eng

	job.Doc.SetReadyState(dom.Interactive)
	return nil
}

// AppendStep inserts "more results" fragments into the page body after it
// has loaded, the way infinite scrolling adds results. Each inserted node
// triggers a rewrite pass.
type AppendStep struct {
	files  []string
	logger *slog.Logger
}

// AppendStepOption configures an AppendStep.
type AppendStepOption func(*AppendStep)

// WithAppendLogger sets a custom logger for the append step.
func WithAppendLogger(logger *slog.Logger) AppendStepOption {
	return func(s *AppendStep) {
		s.logger = logger
	}
}

// NewAppendStep creates an append step inserting the given fragment files
// in order.
func NewAppendStep(files []string, opts ...AppendStepOption) *AppendStep {
	s := &AppendStep{
		files:  files,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *AppendStep) Name() string {
	return "append"
}

// Do executes the append step.
func (s *AppendStep) Do(ctx context.Context, job *Job) error {
	if job.Doc == nil {
		return ErrNoDocument
	}

	for _, file := range s.files {
		if err := ctx.Err(); err != nil {
			return err
		}

		fragment, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read fragment %s: %w", file, err)
		}

		nodes, err := job.Doc.AppendHTML(nil, string(fragment))
		if err != nil {
			return fmt.Errorf("failed to append fragment %s: %w", file, err)
		}

		job.Page.Appended = append(job.Page.Appended, file)
		s.logger.Debug("fragment appended",
			"source", job.Page.Source,
			"fragment", file,
			"nodes", len(nodes),
		)
	}
	return nil
}

// RenderStep completes the document and serializes it.
type RenderStep struct{}

// NewRenderStep creates a new render step.
func NewRenderStep() *RenderStep {
	return &RenderStep{}
}

// Name returns the step name.
func (s *RenderStep) Name() string {
	return "render"
}

// Do executes the render step.
func (s *RenderStep) Do(_ context.Context, job *Job) error {
	if job.Doc == nil {
		return ErrNoDocument
	}
	job.Doc.SetReadyState(dom.Complete)

	var b bytes.Buffer
	if err := job.Doc.Render(&b); err != nil {
		return fmt.Errorf("failed to render %s: %w", job.Page.Source, err)
	}
	job.Page.Output = b.Bytes()
	return nil
}

// MinifyStep minifies the rendered HTML and its inline styles.
type MinifyStep struct {
	min *minify.M
}

// NewMinifyStep creates a new minify step.
func NewMinifyStep() *MinifyStep {
	m := minify.New()
	m.AddFunc("text/css", mincss.Minify)
	m.AddFunc("text/html", minhtml.Minify)
	return &MinifyStep{min: m}
}

// Name returns the step name.
func (s *MinifyStep) Name() string {
	return "minify"
}

// Do executes the minify step.
func (s *MinifyStep) Do(_ context.Context, job *Job) error {
	if job.Page.Output == nil {
		return ErrNoOutput
	}

	var b bytes.Buffer
	if err := s.min.Minify("text/html", &b, bytes.NewReader(job.Page.Output)); err != nil {
		return fmt.Errorf("failed to minify %s: %w", job.Page.Source, err)
	}
	job.Page.Output = b.Bytes()
	return nil
}

// WriteStep writes the rendered page to a file, a directory or a writer.
type WriteStep struct {
	output    string
	outputDir string
	stdout    io.Writer
	logger    *slog.Logger
}

// WriteStepOption configures a WriteStep.
type WriteStepOption func(*WriteStep)

// WithOutput writes the page to path.
func WithOutput(path string) WriteStepOption {
	return func(s *WriteStep) {
		s.output = path
	}
}

// WithOutputDir writes the page into dir under a name derived from its source.
func WithOutputDir(dir string) WriteStepOption {
	return func(s *WriteStep) {
		s.outputDir = dir
	}
}

// WithStdout sets the writer used when no output file or directory is set.
func WithStdout(w io.Writer) WriteStepOption {
	return func(s *WriteStep) {
		s.stdout = w
	}
}

// WithWriteLogger sets a custom logger for the write step.
func WithWriteLogger(logger *slog.Logger) WriteStepOption {
	return func(s *WriteStep) {
		s.logger = logger
	}
}

// NewWriteStep creates a new write step. Without options pages go to stdout.
func NewWriteStep(opts ...WriteStepOption) *WriteStep {
	s := &WriteStep{
		stdout: os.Stdout,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *WriteStep) Name() string {
	return "write"
}

// Do executes the write step.
func (s *WriteStep) Do(_ context.Context, job *Job) error {
	page := job.Page
	if page.Output == nil {
		return ErrNoOutput
	}

	path := s.output
	if path == "" && s.outputDir != "" {
		if err := os.MkdirAll(s.outputDir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		path = filepath.Join(s.outputDir, OutputName(page.Source))
	}

	if path == "" {
		// One Write call per page keeps concurrent pages from interleaving.
		if _, err := s.stdout.Write(page.Output); err != nil {
			return fmt.Errorf("failed to write %s: %w", page.Source, err)
		}
		return nil
	}

	if err := os.WriteFile(path, page.Output, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	page.OutputPath = path
	s.logger.Debug("page written", "source", page.Source, "path", path)
	return nil
}

// maxOutputName bounds generated file names.
const maxOutputName = 200

// OutputName derives the file name a page is written to inside an output
// directory: the base name for files, host, path and query for URLs, and
// "stdin.html" for standard input.
func OutputName(source string) string {
	if source == StdinSource {
		return "stdin.html"
	}

	if isURL(source) {
		var name string
		u, err := url.Parse(source)
		if err != nil {
			name = sanitize(source)
		} else {
			name = sanitize(u.Host + strings.TrimSuffix(u.Path, "/"))
			if u.RawQuery != "" {
				name += "_" + sanitize(u.RawQuery)
			}
		}
		return truncateName(name) + ".html"
	}

	name := filepath.Base(source)
	ext := filepath.Ext(name)
	name = truncateName(strings.TrimSuffix(name, ext))
	if lower := strings.ToLower(ext); lower != ".html" && lower != ".htm" {
		ext = ".html"
	}
	return name + ext
}

func truncateName(name string) string {
	if len(name) > maxOutputName {
		return name[:maxOutputName]
	}
	return name
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// Fetcher downloads URL inputs.
	Fetcher Fetcher

	// Stdin is read for the "-" input.
	Stdin io.Reader

	// BaseURL is the page address of file and stdin inputs.
	BaseURL string

	// MaxBodySize limits file and stdin inputs.
	MaxBodySize int64

	// Rewriter is shared by the engines of all pages.
	Rewriter *rewrite.Rewriter

	// AppendFiles are fragments inserted after load.
	AppendFiles []string

	// Minify minifies the rendered page.
	Minify bool

	// Output, OutputDir and Stdout select where pages are written.
	Output    string
	OutputDir string
	Stdout    io.Writer

	// Logger is passed to every step.
	Logger *slog.Logger
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineFetcher sets the fetcher for URL inputs.
func WithPipelineFetcher(f Fetcher) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Fetcher = f
	}
}

// WithPipelineStdin sets the reader for the "-" input.
func WithPipelineStdin(r io.Reader) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Stdin = r
	}
}

// WithPipelineBaseURL sets the page address of file and stdin inputs.
func WithPipelineBaseURL(u string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.BaseURL = u
	}
}

// WithPipelineMaxBodySize limits file and stdin inputs.
func WithPipelineMaxBodySize(n int64) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxBodySize = n
	}
}

// WithPipelineRewriter sets the rewriter.
func WithPipelineRewriter(r *rewrite.Rewriter) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Rewriter = r
	}
}

// WithPipelineAppendFiles sets the fragments inserted after load.
func WithPipelineAppendFiles(files []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.AppendFiles = files
	}
}

// WithPipelineMinify enables minification.
func WithPipelineMinify(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Minify = enabled
	}
}

// WithPipelineOutput writes the page to path.
func WithPipelineOutput(path string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Output = path
	}
}

// WithPipelineOutputDir writes pages into dir.
func WithPipelineOutputDir(dir string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.OutputDir = dir
	}
}

// WithPipelineStdout sets the writer used when no output is set.
func WithPipelineStdout(w io.Writer) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Stdout = w
	}
}

// WithPipelineLogger sets the logger of every step.
func WithPipelineLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// DefaultPipeline creates the rewrite pipeline: load, parse, rewrite,
// append (when fragments are given), render, minify (when enabled) and
// write. source provides the ignore list.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithPipelineFetcher, etc).
func DefaultPipeline(source engine.Source, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		Stdin:       os.Stdin,
		MaxBodySize: config.DefaultMaxBodySize,
		Stdout:      os.Stdout,
		Logger:      slog.Default(),
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	loadOpts := []LoadStepOption{
		WithStdin(cfg.Stdin),
		WithBaseURL(cfg.BaseURL),
		WithLoadMaxBodySize(cfg.MaxBodySize),
		WithLoadLogger(cfg.Logger),
	}
	if cfg.Fetcher != nil {
		loadOpts = append(loadOpts, WithFetcher(cfg.Fetcher))
	}

	rewriteOpts := []RewriteStepOption{WithRewriteLogger(cfg.Logger)}
	if cfg.Rewriter != nil {
		rewriteOpts = append(rewriteOpts, WithRewriter(cfg.Rewriter))
	}

	p.AddSteps(
		NewLoadStep(loadOpts...),
		NewParseStep(),
		NewRewriteStep(source, rewriteOpts...),
	)
	if len(cfg.AppendFiles) > 0 {
		p.AddStep(NewAppendStep(cfg.AppendFiles, WithAppendLogger(cfg.Logger)))
	}
	p.AddStep(NewRenderStep())
	if cfg.Minify {
		p.AddStep(NewMinifyStep())
	}
	p.AddStep(NewWriteStep(
		WithOutput(cfg.Output),
		WithOutputDir(cfg.OutputDir),
		WithStdout(cfg.Stdout),
		WithWriteLogger(cfg.Logger),
	))

	return p
}
