package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/deamp/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of pages processed at once when no
// concurrency is configured.
const DefaultConcurrency = 4

// BatchProcessor runs a fresh pipeline for each of several pages with
// bounded concurrency.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each page.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of pages processed at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of pages processed at once.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor. pipelineFactory is called
// once per page.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch processes every source and returns one page per source, in
// input order. A page that failed carries its error; only cancellation is
// returned as an error, in which case pages never started are nil.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, sources []string) ([]*model.Page, error) {
	pages := make([]*model.Page, len(sources))
	err := bp.ProcessBatchWithCallback(ctx, sources, func(page *model.Page, index int) {
		pages[index] = page
	})
	return pages, err
}

// ProcessBatchWithCallback processes every source and calls callback with
// each finished page and its index in sources. The callback runs on the
// goroutine that processed the page.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	sources []string,
	callback func(page *model.Page, index int),
) error {
	bp.logger.Debug("starting batch processing",
		"total_pages", len(sources),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, source := range sources {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Debug("processing page",
				"source", source,
				"index", i+1,
				"total", len(sources),
			)

			job := NewJob(source)
			if err := bp.pipelineFactory().Execute(ctx, job); err != nil {
				// Recorded on the page; other pages carry on.
				bp.logger.Warn("page failed",
					"source", source,
					"error", err,
				)
			}

			callback(job.Page, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Debug("batch processing complete",
		"total_pages", len(sources),
		"elapsed", time.Since(startTime),
	)
	return err
}
