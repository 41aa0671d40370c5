// Package page orchestrates style application for one page.
//
// A [Controller] composes the domain-rule matcher, the variable
// resolver, and the delivery engine with an external style registry.
// It reacts to navigation and to pushed registry update/remove events,
// diffing the set of applicable styles against what is currently
// delivered.
//
// Every public entry point catches failures internally and logs them;
// none propagate to the caller. The controller degrades to "no styles
// applied" rather than destabilizing the host page.
package page

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/KiKaraage/eastyles-sub002/pkg/delivery"
	"github.com/KiKaraage/eastyles-sub002/pkg/host"
	"github.com/KiKaraage/eastyles-sub002/pkg/match"
	"github.com/KiKaraage/eastyles-sub002/pkg/observability"
	"github.com/KiKaraage/eastyles-sub002/pkg/registry"
	"github.com/KiKaraage/eastyles-sub002/pkg/style"
	"github.com/KiKaraage/eastyles-sub002/pkg/variables"
)

// DefaultRefreshBudget is the advisory time budget for one full
// refresh. Overruns are logged, never cancelled.
const DefaultRefreshBudget = 200 * time.Millisecond

// Options configures a Controller.
type Options struct {
	// Registry answers queries for the styles registered for this
	// context. Required.
	Registry registry.Registry

	// Engine delivers style text into the page. Required; the
	// controller takes ownership and closes it with Close.
	Engine *delivery.Engine

	// Document provides the page's current URL. Required.
	Document host.Document

	// Navigator delivers address-change notifications. Optional; when
	// nil the caller drives navigation via OnNavigation.
	Navigator host.Navigator

	// Matcher and Resolver default to fresh instances.
	Matcher  *match.Matcher
	Resolver *variables.Resolver

	// Logger defaults to a discard logger.
	Logger *log.Logger

	// RefreshBudget defaults to DefaultRefreshBudget.
	RefreshBudget time.Duration
}

// Controller owns per-page style application state: the current URL
// and the record of currently applied styles.
type Controller struct {
	reg      registry.Registry
	engine   *delivery.Engine
	doc      host.Document
	nav      host.Navigator
	matcher  *match.Matcher
	resolver *variables.Resolver
	logger   *log.Logger
	budget   time.Duration

	mu          sync.Mutex
	url         string
	applied     map[string]style.Document // styleID -> last-applied snapshot
	unsubscribe func()
	closed      bool
}

// NewController creates a Controller. It does nothing to the page
// until Initialize runs.
func NewController(opts Options) (*Controller, error) {
	if opts.Registry == nil {
		return nil, errors.New("page: registry is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("page: delivery engine is required")
	}
	if opts.Document == nil {
		return nil, errors.New("page: document is required")
	}
	matcher := opts.Matcher
	if matcher == nil {
		matcher = match.New()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = variables.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	budget := opts.RefreshBudget
	if budget <= 0 {
		budget = DefaultRefreshBudget
	}
	return &Controller{
		reg:      opts.Registry,
		engine:   opts.Engine,
		doc:      opts.Document,
		nav:      opts.Navigator,
		matcher:  matcher,
		resolver: resolver,
		logger:   logger,
		budget:   budget,
		applied:  make(map[string]style.Document),
	}, nil
}

// Initialize captures the page's current URL, applies every matching
// style, and installs the navigation observer so history mutation,
// back/forward traversal, and fragment changes all re-enter
// OnNavigation.
func (c *Controller) Initialize(ctx context.Context) {
	c.mu.Lock()
	c.url = c.doc.URL()
	c.mu.Unlock()

	c.Refresh(ctx)

	if c.nav != nil {
		unsub := c.nav.OnNavigate(func(url string) {
			c.OnNavigation(context.Background(), url)
		})
		c.mu.Lock()
		c.unsubscribe = unsub
		c.mu.Unlock()
	}
}

// OnNavigation handles an address change. Unchanged URLs are a no-op;
// otherwise the current URL is updated and the applied set refreshed.
func (c *Controller) OnNavigation(ctx context.Context, url string) {
	c.mu.Lock()
	if c.closed || url == c.url {
		c.mu.Unlock()
		return
	}
	c.url = url
	c.mu.Unlock()

	c.logger.Debug("navigated", "url", url)
	c.Refresh(ctx)
}

// Refresh re-queries the registry and reconciles the applied set
// against the current URL: styles that stopped matching or vanished
// from the registry are removed, newly matching ones are resolved and
// injected.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	url := c.url
	c.mu.Unlock()

	start := time.Now()

	docs, err := c.reg.Query(ctx, url)
	observability.Registry().OnQuery(ctx, url, len(docs), err)
	if err != nil {
		// Degrade: keep the page as it is, apply nothing new.
		c.logger.Warn("style registry query failed", "url", url, "err", err)
		return
	}

	byID := make(map[string]*style.Document, len(docs))
	for i := range docs {
		byID[docs[i].ID] = &docs[i]
	}

	// Pass 1: drop applied styles that vanished or stopped matching.
	c.mu.Lock()
	var stale []string
	for id, snap := range c.applied {
		doc, present := byID[id]
		rules := snap.Rules
		if present {
			rules = doc.Rules
		}
		if !present || !c.matcher.Matches(url, rules) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(c.applied, id)
	}
	c.mu.Unlock()
	for _, id := range stale {
		c.engine.Remove(ctx, id)
		c.logger.Debug("style no longer applies", "style", id)
	}

	// Pass 2: inject matching styles not yet applied. Docs arrive in
	// installation order, preserving the cascade tiebreak.
	for _, doc := range docs {
		c.mu.Lock()
		_, already := c.applied[doc.ID]
		c.mu.Unlock()
		if already || !doc.Enabled || !c.matcher.Matches(url, doc.Rules) {
			continue
		}
		c.apply(ctx, doc)
	}

	elapsed := time.Since(start)
	if elapsed > c.budget {
		c.logger.Warn("refresh exceeded budget", "url", url,
			"elapsed", elapsed, "budget", c.budget)
		observability.Engine().OnBudgetExceeded(ctx, "refresh", elapsed, c.budget)
	}
}

// apply resolves a document's variables, hands the text to the
// delivery engine, and records the snapshot. The injection settles
// asynchronously; a settled failure is logged and the record evicted.
func (c *Controller) apply(ctx context.Context, doc style.Document) {
	css := c.resolver.Resolve(doc.Source, doc.Values())
	res := c.engine.Inject(ctx, doc.ID, css)

	c.mu.Lock()
	c.applied[doc.ID] = doc.Clone()
	c.mu.Unlock()

	go func() {
		if err := res.Wait(context.Background()); err != nil {
			c.logger.Warn("style injection failed", "style", doc.ID, "err", err)
			c.mu.Lock()
			delete(c.applied, doc.ID)
			c.mu.Unlock()
		}
	}()
}

// OnStyleUpdate handles a pushed update for one style. A document
// matching the current URL is applied or updated in place; one that
// stopped matching (or was disabled) is removed if previously applied.
func (c *Controller) OnStyleUpdate(ctx context.Context, styleID string, doc style.Document) {
	observability.Registry().OnEvent(ctx, string(registry.EventUpdated), styleID)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	url := c.url
	_, wasApplied := c.applied[styleID]
	c.mu.Unlock()

	if doc.Enabled && c.matcher.Matches(url, doc.Rules) {
		css := c.resolver.Resolve(doc.Source, doc.Values())
		if err := c.engine.Update(ctx, styleID, css); err != nil {
			c.logger.Warn("style update failed", "style", styleID, "err", err)
			c.mu.Lock()
			delete(c.applied, styleID)
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		c.applied[styleID] = doc.Clone()
		c.mu.Unlock()
		return
	}

	if wasApplied {
		c.mu.Lock()
		delete(c.applied, styleID)
		c.mu.Unlock()
		c.engine.Remove(ctx, styleID)
	}
}

// OnStyleRemove handles a pushed removal. A no-op unless the style is
// currently applied.
func (c *Controller) OnStyleRemove(ctx context.Context, styleID string) {
	observability.Registry().OnEvent(ctx, string(registry.EventRemoved), styleID)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	_, wasApplied := c.applied[styleID]
	delete(c.applied, styleID)
	c.mu.Unlock()

	if wasApplied {
		c.engine.Remove(ctx, styleID)
	}
}

// WatchRegistry consumes a registry event stream, dispatching each
// event to OnStyleUpdate or OnStyleRemove. It returns when the channel
// closes or ctx is done.
func (c *Controller) WatchRegistry(ctx context.Context, events <-chan registry.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case registry.EventUpdated:
				if ev.Doc != nil {
					c.OnStyleUpdate(ctx, ev.StyleID, *ev.Doc)
				}
			case registry.EventRemoved:
				c.OnStyleRemove(ctx, ev.StyleID)
			}
		}
	}
}

// URL returns the controller's view of the current address.
func (c *Controller) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// AppliedStyles returns a defensive snapshot of the currently applied
// styles keyed by ID, never the live map.
func (c *Controller) AppliedStyles() map[string]style.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]style.Document, len(c.applied))
	for id, doc := range c.applied {
		out[id] = doc.Clone()
	}
	return out
}

// Close uninstalls the navigation observer and closes the delivery
// engine. Applied styles are left in the page; the page teardown
// discards them.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return c.engine.Close()
}
