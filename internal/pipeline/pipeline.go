package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/deamp/internal/dom"
	"github.com/nao1215/deamp/internal/engine"
	"github.com/nao1215/deamp/internal/model"
)

// Job is one page moving through a pipeline. Steps fill in Doc and Engine
// as they go; Page collects everything that ends up in the report.
type Job struct {
	// Page is the page being processed.
	Page *model.Page

	// Doc is the parsed document, set by ParseStep.
	Doc *dom.Document

	// Engine drives the rewrite passes over Doc, set by RewriteStep.
	Engine *engine.Engine
}

// NewJob creates a Job for source.
func NewJob(source string) *Job {
	return &Job{Page: model.NewPage(source)}
}

// Close stops the job's engine, if any. Rewritten links stay rewritten.
func (j *Job) Close() error {
	if j.Engine == nil {
		return nil
	}
	return j.Engine.Close()
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each one seeing the job as the previous
// steps left it.
type Step interface {
	// Do executes the pipeline step. It returns an error if the step fails
	// critically; problems that do not stop processing are recorded on the
	// page and nil is returned.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to keep executing steps
// after one fails. The first failure is still recorded on the page.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence and closes the job's engine
// when done. Cancellation is checked before each step.
//
// Returns the first error encountered if continueOnError is false,
// or nil if all steps complete (errors are recorded on the page).
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	page := job.Page
	defer func() {
		if err := job.Close(); err != nil {
			p.logger.Debug("failed to close engine", "source", page.Source, "error", err)
		}
	}()

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			page.TimedOut = true
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"source", page.Source,
		)

		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"source", page.Source,
				"error", err,
			)

			if page.Error == nil {
				page.Error = err
				page.ErrorMessage = err.Error()
			}

			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"source", page.Source,
		)
		page.PerformedSteps = append(page.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
