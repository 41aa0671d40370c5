// Package host abstracts the mutation primitives a page exposes for
// style delivery.
//
// The delivery engine only ever talks to these interfaces. Three
// capability groups exist:
//
//   - plain style nodes: insert/update/remove a style-bearing node
//     tagged with a style ID (universally available)
//   - constructed stylesheets: build an external sheet object and
//     adopt it into the page
//   - a privileged, context-scoped CSS insertion call with a
//     symmetric removal call (optional; host-mediated)
//
// Any primitive may fail with a [PolicyError] when a security policy
// of the page blocks it; the engine classifies those and falls back
// to another mechanism.
package host

import (
	"context"
	"errors"
	"fmt"
)

// NodeRef identifies a style node inserted into a page.
type NodeRef string

// SheetRef identifies a constructed stylesheet adopted by a page.
type SheetRef string

// Document is the style-delivery surface of one page.
type Document interface {
	// URL returns the page's current address.
	URL() string

	// InsertStyleNode inserts a style-bearing node tagged with styleID.
	InsertStyleNode(ctx context.Context, styleID, css string) (NodeRef, error)

	// UpdateStyleNode replaces the text of an inserted node.
	UpdateStyleNode(ctx context.Context, ref NodeRef, css string) error

	// RemoveStyleNode removes an inserted node.
	RemoveStyleNode(ctx context.Context, ref NodeRef) error

	// FindStyleNode locates a residual node tagged with styleID, e.g.
	// one whose handle was lost across a navigation.
	FindStyleNode(ctx context.Context, styleID string) (NodeRef, bool)

	// ConstructSheet builds a stylesheet object and adopts it.
	ConstructSheet(ctx context.Context, css string) (SheetRef, error)

	// ReplaceSheet swaps the contents of an adopted sheet in place.
	ReplaceSheet(ctx context.Context, ref SheetRef, css string) error

	// ReleaseSheet un-adopts and discards a constructed sheet.
	ReleaseSheet(ctx context.Context, ref SheetRef) error
}

// PrivilegedInserter is the optional host-mediated insertion API,
// scoped to a frame/context identifier. Removal must be called with
// the same styleID and CSS-identifying context used on insertion.
type PrivilegedInserter interface {
	InsertCSS(ctx context.Context, frameID, styleID, css string) error
	RemoveCSS(ctx context.Context, frameID, styleID, css string) error
}

// Navigator delivers address-change notifications for a page. History
// mutation, back/forward traversal, and fragment changes all collapse
// into one callback carrying the new URL.
type Navigator interface {
	// OnNavigate registers fn and returns an unsubscribe function.
	OnNavigate(fn func(url string)) (unsubscribe func())
}

// PolicyError reports a delivery primitive blocked by a security
// policy of the page.
type PolicyError struct {
	// Directive is the violated policy rule category, e.g.
	// "style-src" or "host-permission".
	Directive string

	// Reason is a human-readable explanation.
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Directive, e.Reason)
}

// IsPolicyViolation reports whether err wraps a PolicyError.
func IsPolicyViolation(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}
