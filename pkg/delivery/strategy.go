package delivery

import (
	"context"
	"fmt"

	"github.com/KiKaraage/eastyles-sub002/pkg/host"
)

// Strategy is one of the mutually-exclusive mechanisms for placing
// style text into a page.
type Strategy string

// The closed set of delivery strategies, in preference order.
const (
	// StrategyConstructed builds a stylesheet object and adopts it
	// into the page. Preferred: cheap in-place updates, no DOM churn.
	StrategyConstructed Strategy = "constructed"

	// StrategyPrivileged uses the host-mediated, frame-scoped CSS
	// insertion API. Immune to page-level policy restrictions but
	// needs the host to grant it.
	StrategyPrivileged Strategy = "privileged"

	// StrategyNode inserts a plain style node. The universal fallback.
	StrategyNode Strategy = "node"
)

// universalFallback is the order tried for failures that are not
// policy violations. The active strategy is skipped and restored
// afterward regardless of outcome.
var universalFallback = []Strategy{StrategyNode, StrategyPrivileged, StrategyConstructed}

// Remediation categorizes what would unblock a policy-violating
// delivery, and selects the fallback order tried for it.
type Remediation string

// Remediation categories.
const (
	// RemediationHostPermission: the host has not granted access to
	// this page at all.
	RemediationHostPermission Remediation = "host-permission"

	// RemediationPrivilegedAPI: page policy blocks in-page mechanisms;
	// the host-mediated API bypasses it.
	RemediationPrivilegedAPI Remediation = "host-mediated-api"

	// RemediationUserAction: nothing the engine can do alone; the user
	// must intervene.
	RemediationUserAction Remediation = "user-action"
)

// remediationFallback maps a remediation category to the strategies
// most likely to satisfy it, in order. A strategy succeeding here is
// promoted to the engine's active strategy.
var remediationFallback = map[Remediation][]Strategy{
	RemediationHostPermission: {StrategyPrivileged, StrategyNode},
	RemediationPrivilegedAPI:  {StrategyPrivileged},
	RemediationUserAction:     {StrategyNode, StrategyPrivileged},
}

// Handle is the strategy-specific reference needed to later remove or
// update a delivered style. A tagged struct rather than an interface
// so removal never depends on unchecked casts; exactly one of the
// payload fields is meaningful for a given Strategy.
type Handle struct {
	Strategy Strategy

	Node  host.NodeRef  // StrategyNode
	Sheet host.SheetRef // StrategyConstructed
	CSS   string        // StrategyPrivileged: text needed for symmetric removal
}

// applyWith delivers css for styleID using strategy s and returns the
// handle needed to undo it.
func (e *Engine) applyWith(ctx context.Context, s Strategy, styleID, css string) (Handle, error) {
	switch s {
	case StrategyConstructed:
		ref, err := e.doc.ConstructSheet(ctx, css)
		if err != nil {
			return Handle{}, err
		}
		return Handle{Strategy: s, Sheet: ref}, nil
	case StrategyPrivileged:
		if e.priv == nil {
			return Handle{}, fmt.Errorf("%s: %w", styleID, ErrNoPrivilegedAPI)
		}
		if err := e.priv.InsertCSS(ctx, e.frameID, styleID, css); err != nil {
			return Handle{}, err
		}
		return Handle{Strategy: s, CSS: css}, nil
	case StrategyNode:
		ref, err := e.doc.InsertStyleNode(ctx, styleID, css)
		if err != nil {
			return Handle{}, err
		}
		return Handle{Strategy: s, Node: ref}, nil
	}
	return Handle{}, fmt.Errorf("unknown strategy %q", s)
}

// removeWith undoes a delivery using the strategy the handle was
// created with.
func (e *Engine) removeWith(ctx context.Context, styleID string, h Handle) error {
	switch h.Strategy {
	case StrategyConstructed:
		return e.doc.ReleaseSheet(ctx, h.Sheet)
	case StrategyPrivileged:
		if e.priv == nil {
			return ErrNoPrivilegedAPI
		}
		return e.priv.RemoveCSS(ctx, e.frameID, styleID, h.CSS)
	case StrategyNode:
		return e.doc.RemoveStyleNode(ctx, h.Node)
	}
	return fmt.Errorf("unknown strategy %q", h.Strategy)
}

// updateWith mutates a delivered style in place and returns the
// (possibly unchanged) handle. Privileged insertions have no in-place
// mutation; they re-insert after a symmetric removal.
func (e *Engine) updateWith(ctx context.Context, styleID, css string, h Handle) (Handle, error) {
	switch h.Strategy {
	case StrategyConstructed:
		if err := e.doc.ReplaceSheet(ctx, h.Sheet, css); err != nil {
			return h, err
		}
		return h, nil
	case StrategyPrivileged:
		if e.priv == nil {
			return h, ErrNoPrivilegedAPI
		}
		if err := e.priv.RemoveCSS(ctx, e.frameID, styleID, h.CSS); err != nil {
			return h, err
		}
		if err := e.priv.InsertCSS(ctx, e.frameID, styleID, css); err != nil {
			return h, err
		}
		h.CSS = css
		return h, nil
	case StrategyNode:
		if err := e.doc.UpdateStyleNode(ctx, h.Node, css); err != nil {
			return h, err
		}
		return h, nil
	}
	return h, fmt.Errorf("unknown strategy %q", h.Strategy)
}
