// Package registry stores style documents and feeds the page
// controller.
//
// Three backends exist:
//   - memory: map-based, for tests and embedding
//   - dir: a directory of TOML style documents, watched with fsnotify
//   - redis: JSON values with pub/sub update/remove notifications
//
// A [Registry] answers queries for the documents registered in
// principle for a context; deciding which of them actually apply to a
// URL is the matcher's job. Backends that also mutate implement
// [Store], and [Watcher] backends push update/remove events that the
// controller turns into apply/remove operations without a full
// refresh.
package registry

import (
	"context"
	"errors"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// Sentinel errors for registry operations.
var (
	// ErrNotFound is returned when a requested style does not exist.
	ErrNotFound = errors.New("style not found")
)

// EventType discriminates pushed registry notifications.
type EventType string

// Registry event types.
const (
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event is one pushed update/remove notification. Doc is set for
// EventUpdated and nil for EventRemoved.
type Event struct {
	Type    EventType       `json:"type"`
	StyleID string          `json:"style_id"`
	Doc     *style.Document `json:"doc,omitempty"`
}

// Registry answers queries for the styles registered for a context.
type Registry interface {
	// Query returns every enabled style document. Implementations may
	// pre-filter by url but are not required to; the caller runs the
	// domain-rule matcher regardless.
	Query(ctx context.Context, url string) ([]style.Document, error)
}

// Watcher pushes update/remove notifications.
type Watcher interface {
	// Watch returns a channel of events that closes when ctx is done.
	Watch(ctx context.Context) (<-chan Event, error)
}

// Store is a mutable registry backend.
type Store interface {
	Registry

	// Get returns the document with the given ID.
	// Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*style.Document, error)

	// Put installs or replaces a document.
	Put(ctx context.Context, doc style.Document) error

	// Delete removes a document. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns every document, enabled or not.
	List(ctx context.Context) ([]style.Document, error)
}
