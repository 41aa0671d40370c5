// Package delivery applies, updates, and removes style text in a host
// page via tiered strategies with batching and policy-violation
// recovery.
//
// # Architecture
//
// The engine owns a per-style handle registry and one mutable active
// strategy drawn from a closed set ([StrategyConstructed],
// [StrategyPrivileged], [StrategyNode]). Injections are coalesced: an
// [Engine.Inject] call enqueues the entry and schedules a flush after
// a short fixed delay, so bursts of near-simultaneous injections (all
// styles matching on initial page load) materialize in one batch.
// Each queued entry settles independently through its [Result].
//
// # Failure recovery
//
// A strategy failure during application is classified. Failures with a
// policy-violation signature produce a structured [PolicyViolation]
// diagnostic and retry along a remediation-specific fallback order;
// the strategy that succeeds is promoted to the engine's active
// strategy for future operations. Any other failure walks the
// remaining strategies in a fixed universal order without touching the
// active strategy, and exhausting them yields a [DeliveryFailure]
// aggregating every underlying error.
//
// Promotion never migrates handles created under a previous strategy;
// they are removed with the strategy that created them.
//
// # Concurrency
//
// The engine expects one cooperative caller (the page controller).
// Batch entries are attempted concurrently within a flush with no
// ordering guarantee relative to each other; Update and Remove force a
// prior flush so they always observe materialized state. Re-entrant
// calls for the same style ID before a prior operation settles are not
// internally serialized.
package delivery

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/KiKaraage/eastyles-sub002/pkg/host"
	"github.com/KiKaraage/eastyles-sub002/pkg/observability"
)

// Timing constants. The flush budget is advisory: overruns are logged,
// never cancelled.
const (
	// DefaultCoalesceDelay is how long injections are held to batch
	// near-simultaneous calls.
	DefaultCoalesceDelay = 25 * time.Millisecond

	// DefaultFlushBudget is the advisory time budget for one flush.
	DefaultFlushBudget = 150 * time.Millisecond
)

// Options configures an Engine.
type Options struct {
	// Document is the page's delivery surface. Required.
	Document host.Document

	// Privileged is the optional host-mediated insertion API. Nil
	// disables the privileged strategy.
	Privileged host.PrivilegedInserter

	// FrameID scopes privileged insertions to a frame/context.
	FrameID string

	// Initial is the starting active strategy. Defaults to
	// StrategyConstructed.
	Initial Strategy

	// Logger defaults to a discard logger.
	Logger *log.Logger

	// CoalesceDelay and FlushBudget default to the package constants.
	CoalesceDelay time.Duration
	FlushBudget   time.Duration
}

// Engine delivers style text into one page. Create with New, release
// with Close; each page controller owns exactly one instance.
type Engine struct {
	doc     host.Document
	priv    host.PrivilegedInserter
	frameID string
	logger  *log.Logger
	delay   time.Duration
	budget  time.Duration

	mu       sync.Mutex
	strategy Strategy
	handles  map[string]Handle
	pending  map[string]*pendingEntry
	timer    *time.Timer
	closed   bool

	// flushMu serializes whole flushes (timer-driven against forced).
	flushMu sync.Mutex
}

type pendingEntry struct {
	styleID string
	css     string
	results []*Result
}

// Result settles once a queued injection has actually been applied
// (or definitively failed).
type Result struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

func (r *Result) settle(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed when the injection has settled.
func (r *Result) Done() <-chan struct{} { return r.done }

// Wait blocks until the injection settles or ctx is cancelled.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.err
	}
}

// New creates an Engine for the given page.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	delay := opts.CoalesceDelay
	if delay <= 0 {
		delay = DefaultCoalesceDelay
	}
	budget := opts.FlushBudget
	if budget <= 0 {
		budget = DefaultFlushBudget
	}
	initial := opts.Initial
	if initial == "" {
		initial = StrategyConstructed
	}
	return &Engine{
		doc:      opts.Document,
		priv:     opts.Privileged,
		frameID:  opts.FrameID,
		logger:   logger,
		delay:    delay,
		budget:   budget,
		strategy: initial,
		handles:  make(map[string]Handle),
		pending:  make(map[string]*pendingEntry),
	}
}

// Inject enqueues css for styleID into the current batch and schedules
// a flush after the coalescing delay unless one is already scheduled.
// The returned Result settles once the entry is actually applied. A
// second Inject for a still-queued styleID replaces its text; both
// results settle with the outcome of the final text.
func (e *Engine) Inject(ctx context.Context, styleID, css string) *Result {
	r := newResult()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		r.settle(ErrClosed)
		return r
	}
	if en, ok := e.pending[styleID]; ok {
		en.css = css
		en.results = append(en.results, r)
	} else {
		e.pending[styleID] = &pendingEntry{styleID: styleID, css: css, results: []*Result{r}}
	}
	if e.timer == nil {
		e.timer = time.AfterFunc(e.delay, func() {
			e.Flush(context.Background())
		})
	}
	e.mu.Unlock()
	return r
}

// Flush forces synchronous materialization of every pending batch
// entry. Entries are attempted concurrently with no ordering guarantee
// among them. Exceeding the performance budget logs a warning but
// never fails the batch.
func (e *Engine) Flush(ctx context.Context) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	pending := e.pending
	if !e.closed {
		e.pending = make(map[string]*pendingEntry)
	}
	e.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, en := range pending {
		wg.Add(1)
		go func(en *pendingEntry) {
			defer wg.Done()
			err := e.applyEntry(ctx, en.styleID, en.css)
			for _, r := range en.results {
				r.settle(err)
			}
		}(en)
	}
	wg.Wait()

	elapsed := time.Since(start)
	observability.Engine().OnFlush(ctx, len(pending), elapsed)
	if elapsed > e.budget {
		e.logger.Warn("batch flush exceeded budget",
			"entries", len(pending), "elapsed", elapsed, "budget", e.budget)
		observability.Engine().OnBudgetExceeded(ctx, "flush", elapsed, e.budget)
	}
}

// applyEntry delivers one entry with the active strategy, falling back
// per the failure classification described in the package comment.
func (e *Engine) applyEntry(ctx context.Context, styleID, css string) error {
	active := e.ActiveStrategy()
	h, err := e.applyWith(ctx, active, styleID, css)
	observability.Engine().OnApply(ctx, styleID, string(active), err)
	if err == nil {
		e.register(ctx, styleID, h)
		return nil
	}

	if pv, ok := classifyPolicy(styleID, active, err); ok {
		e.logger.Debug("policy violation, trying remediation fallbacks",
			"style", styleID, "strategy", active, "remediation", pv.Remediation)
		for _, s := range remediationFallback[pv.Remediation] {
			if s == active {
				continue
			}
			fh, ferr := e.applyWith(ctx, s, styleID, css)
			observability.Engine().OnApply(ctx, styleID, string(s), ferr)
			if ferr != nil {
				continue
			}
			e.promote(ctx, active, s)
			e.register(ctx, styleID, fh)
			return nil
		}
		return pv
	}

	// Unclassified failure: walk the remaining strategies in the fixed
	// universal order. The active strategy is left untouched.
	errs := []error{err}
	for _, s := range universalFallback {
		if s == active {
			continue
		}
		fh, ferr := e.applyWith(ctx, s, styleID, css)
		observability.Engine().OnApply(ctx, styleID, string(s), ferr)
		if ferr == nil {
			e.register(ctx, styleID, fh)
			return nil
		}
		errs = append(errs, ferr)
	}
	return &DeliveryFailure{StyleID: styleID, Errs: errs}
}

// register stores the handle for styleID, displacing and undoing any
// previous delivery so at most one artifact per style exists.
func (e *Engine) register(ctx context.Context, styleID string, h Handle) {
	e.mu.Lock()
	old, had := e.handles[styleID]
	e.handles[styleID] = h
	e.mu.Unlock()
	if !had {
		return
	}
	// A privileged re-insert already displaced the old artifact;
	// removing it now would delete the fresh one.
	if old.Strategy == StrategyPrivileged && h.Strategy == StrategyPrivileged {
		return
	}
	if err := e.removeWith(ctx, styleID, old); err != nil {
		e.logger.Debug("stale artifact removal failed", "style", styleID,
			"strategy", old.Strategy, "err", err)
	}
}

func (e *Engine) promote(ctx context.Context, from, to Strategy) {
	e.mu.Lock()
	changed := e.strategy != to
	e.strategy = to
	e.mu.Unlock()
	if changed {
		e.logger.Info("delivery strategy promoted", "from", from, "to", to)
		observability.Engine().OnStrategyChange(ctx, string(from), string(to))
	}
}

// Update mutates styleID's delivered text. A pending batch is flushed
// first so a freshly queued handle exists; an unregistered style is
// treated as a new injection. An in-place mutation failure falls back
// to remove-then-reinject.
func (e *Engine) Update(ctx context.Context, styleID, css string) error {
	e.Flush(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	h, ok := e.handles[styleID]
	e.mu.Unlock()

	if !ok {
		r := e.Inject(ctx, styleID, css)
		e.Flush(ctx)
		return r.Wait(ctx)
	}

	nh, err := e.updateWith(ctx, styleID, css, h)
	if err == nil {
		e.mu.Lock()
		e.handles[styleID] = nh
		e.mu.Unlock()
		return nil
	}
	e.logger.Debug("in-place update failed, re-injecting",
		"style", styleID, "strategy", h.Strategy, "err", err)

	e.mu.Lock()
	delete(e.handles, styleID)
	e.mu.Unlock()
	if rerr := e.removeWith(ctx, styleID, h); rerr != nil {
		e.logger.Debug("removal before re-inject failed", "style", styleID, "err", rerr)
	}
	return e.applyEntry(ctx, styleID, css)
}

// Remove undoes styleID's delivery. The registry entry is always
// evicted: a failed underlying removal is logged, never surfaced,
// since residual artifacts from a navigated-away page are harmless.
// On a registry miss the page is searched for a residual node tagged
// with styleID before giving up.
func (e *Engine) Remove(ctx context.Context, styleID string) {
	e.Flush(ctx)

	e.mu.Lock()
	h, ok := e.handles[styleID]
	delete(e.handles, styleID)
	e.mu.Unlock()

	if !ok {
		if ref, found := e.doc.FindStyleNode(ctx, styleID); found {
			if err := e.doc.RemoveStyleNode(ctx, ref); err != nil {
				e.logger.Debug("residual node removal failed", "style", styleID, "err", err)
			}
		}
		return
	}
	if err := e.removeWith(ctx, styleID, h); err != nil {
		e.logger.Warn("style removal failed, artifact may linger",
			"style", styleID, "strategy", h.Strategy, "err", err)
	}
}

// ActiveStrategy returns the strategy used for the next application.
func (e *Engine) ActiveStrategy() Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy
}

// Registered reports whether a handle exists for styleID.
func (e *Engine) Registered(styleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.handles[styleID]
	return ok
}

// HandleCount reports the number of registered handles.
func (e *Engine) HandleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Close stops the batch timer and settles every still-pending
// injection with ErrClosed. Already-applied styles are left in the
// page; tear the page down or Remove them explicitly.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, en := range pending {
		for _, r := range en.results {
			r.settle(ErrClosed)
		}
	}
	return nil
}
