package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nao1215/deamp/internal/canonical"
	"github.com/nao1215/deamp/internal/dom"
	"github.com/nao1215/deamp/internal/rewrite"
)

// Source supplies the ignore list and reports changes to it.
type Source interface {
	// IgnoredHostnames returns the current ignore list.
	IgnoredHostnames(ctx context.Context) ([]string, error)

	// OnIgnoredHostnamesChanged registers fn to be called with the new list
	// after every change. The returned function deregisters fn.
	OnIgnoredHostnamesChanged(fn func([]string)) (cancel func())
}

// PassReport describes one completed pass.
type PassReport struct {
	// Trigger is what caused the pass.
	Trigger Trigger

	// Ignored is the ignore list the pass ran with.
	Ignored []string

	// Result holds the per-link outcomes.
	Result rewrite.PassResult
}

// Engine reconciles one document with the ignore list.
type Engine struct {
	mu sync.Mutex

	doc      *dom.Document
	source   Source
	rewriter *rewrite.Rewriter
	ledger   *rewrite.Ledger
	logger   *slog.Logger
	onPass   func(PassReport)

	state   State
	started bool
	closed  bool

	// reading is set while the initial ignore list read is in flight.
	// Insertions in that window run passes with the latest list.
	reading bool

	// latest is the most recently applied ignore list.
	latest []string

	// generation counts applied ignore lists, so that a slow initial read
	// never overrides a change that arrived while it was in flight.
	generation uint64

	// pendingRetry is the single ready-state listener registered while the
	// document is loading.
	pendingRetry *dom.Listener

	// observer is the insertion listener registered while Active or reading.
	observer *dom.Listener

	unsubscribe func()
	passes      int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRewriter sets the rewriter used for passes.
func WithRewriter(r *rewrite.Rewriter) Option {
	return func(e *Engine) {
		e.rewriter = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithOnPass registers fn to be called after every pass. fn runs while the
// engine is locked and must not call back into the Engine.
func WithOnPass(fn func(PassReport)) Option {
	return func(e *Engine) {
		e.onPass = fn
	}
}

// New creates an Engine for doc. Nothing happens until Start.
func New(doc *dom.Document, source Source, opts ...Option) *Engine {
	e := &Engine{
		doc:    doc,
		source: source,
		ledger: rewrite.NewLedger(),
		state:  AwaitingDocumentReady,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.rewriter == nil {
		e.rewriter = rewrite.New(rewrite.WithLogger(e.logger))
	}
	return e
}

// Start subscribes to ignore list changes, reads the list and applies it.
// A failed read is logged and treated as an empty list.
func (e *Engine) Start(ctx context.Context) error {
	generation, err := e.begin()
	if err != nil {
		return err
	}
	e.load(ctx, generation)
	return nil
}

// StartAsync is Start with the read done in the background. The returned
// channel is closed once the initial list has been applied.
func (e *Engine) StartAsync(ctx context.Context) (<-chan struct{}, error) {
	generation, err := e.begin()
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.load(ctx, generation)
	}()
	return done, nil
}

// begin marks the engine started and subscribes to changes.
func (e *Engine) begin() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}
	if e.started {
		return 0, ErrAlreadyStarted
	}
	e.started = true
	e.reading = true
	if e.doc.ReadyState() != dom.Loading {
		e.observe()
	}
	e.unsubscribe = e.source.OnIgnoredHostnamesChanged(e.onSettingsChanged)
	return e.generation, nil
}

// load reads the ignore list and applies it unless a change notification
// was applied in the meantime.
func (e *Engine) load(ctx context.Context, generation uint64) {
	list, err := e.source.IgnoredHostnames(ctx)
	if err != nil {
		e.logger.Warn("using an empty ignore list", "error", fmt.Errorf("%w: %w", ErrSettingsRead, err))
		list = nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.reading = false
	if e.closed {
		return
	}
	if e.generation != generation {
		e.logger.Debug("discarding stale ignore list read")
		return
	}
	e.apply(list, TriggerStart)
}

func (e *Engine) onSettingsChanged(list []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.logger.Debug("ignore list changed", "hostnames", list)
	e.apply(list, TriggerSettings)
}

// apply is the single entry point of the state machine. e.mu must be held.
func (e *Engine) apply(list []string, trigger Trigger) {
	list = normalize(list)
	e.generation++
	e.latest = list

	if e.doc.ReadyState() == dom.Loading {
		e.state = AwaitingDocumentReady
		e.unobserve()
		e.replaceRetry(list)
		return
	}

	if e.pendingRetry != nil {
		e.doc.RemoveEventListener(dom.EventReadyStateChange, e.pendingRetry)
		e.pendingRetry = nil
	}
	e.unobserve()

	e.state = Active
	e.pass(trigger)
	e.observe()
}

// observe registers a fresh insertion listener. e.mu must be held.
func (e *Engine) observe() {
	e.observer = dom.NewListener(func(*dom.Event) {
		e.onInsertion()
	})
	e.doc.AddEventListener(dom.EventNodeInserted, e.observer)
}

// unobserve deregisters the insertion listener, if any. e.mu must be held.
func (e *Engine) unobserve() {
	if e.observer != nil {
		e.doc.RemoveEventListener(dom.EventNodeInserted, e.observer)
		e.observer = nil
	}
}

// replaceRetry deregisters the pending retry, if any, and registers a new
// one for list.
func (e *Engine) replaceRetry(list []string) {
	if e.pendingRetry != nil {
		e.doc.RemoveEventListener(dom.EventReadyStateChange, e.pendingRetry)
	}

	var retry *dom.Listener
	retry = dom.NewListener(func(*dom.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.closed || e.pendingRetry != retry {
			return
		}
		e.apply(list, TriggerReady)
	})
	e.pendingRetry = retry
	e.doc.AddEventListener(dom.EventReadyStateChange, retry)
	e.logger.Debug("document is loading, waiting for ready state change")
}

func (e *Engine) onInsertion() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if e.state != Active && !e.reading {
		return
	}
	e.pass(TriggerInsertion)
}

// pass runs one rewrite pass with the latest list. e.mu must be held.
func (e *Engine) pass(trigger Trigger) {
	result := e.rewriter.Pass(e.doc, e.ledger, e.latest)
	e.passes++
	e.logger.Debug("rewrite pass finished",
		"trigger", trigger,
		"links", len(result.Outcomes),
		"rewritten", e.ledger.Len(),
	)
	if e.onPass != nil {
		e.onPass(PassReport{
			Trigger: trigger,
			Ignored: slices.Clone(e.latest),
			Result:  result,
		})
	}
}

// Close deregisters every listener and the change subscription. Rewritten
// links stay rewritten.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.pendingRetry != nil {
		e.doc.RemoveEventListener(dom.EventReadyStateChange, e.pendingRetry)
		e.pendingRetry = nil
	}
	e.unobserve()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	return nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ledger returns the engine's ledger.
func (e *Engine) Ledger() *rewrite.Ledger {
	return e.ledger
}

// Passes returns the number of passes run so far.
func (e *Engine) Passes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.passes
}

// IgnoredHostnames returns the ignore list most recently applied.
func (e *Engine) IgnoredHostnames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.latest)
}

// normalize returns list with hostnames in the form rewrite passes compare
// against.
func normalize(list []string) []string {
	out := make([]string, 0, len(list))
	for _, h := range list {
		if h = canonical.NormalizeHost(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
