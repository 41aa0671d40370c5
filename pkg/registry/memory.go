package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// Memory is a map-backed Store for development and testing. It also
// implements Watcher: Put and Delete broadcast events to every active
// Watch channel.
type Memory struct {
	mu   sync.Mutex
	docs map[string]style.Document
	subs map[int]chan Event
	next int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]style.Document),
		subs: make(map[int]chan Event),
	}
}

// Query returns every enabled document, ordered by installation time.
func (m *Memory) Query(ctx context.Context, url string) ([]style.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []style.Document
	for _, d := range m.docs {
		if d.Enabled {
			out = append(out, d.Clone())
		}
	}
	sortByInstall(out)
	return out, nil
}

// Get returns the document with the given ID.
func (m *Memory) Get(ctx context.Context, id string) (*style.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := d.Clone()
	return &c, nil
}

// Put installs or replaces a document and broadcasts an update event.
func (m *Memory) Put(ctx context.Context, doc style.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[doc.ID] = doc.Clone()
	m.mu.Unlock()
	d := doc.Clone()
	m.broadcast(Event{Type: EventUpdated, StyleID: doc.ID, Doc: &d})
	return nil
}

// Delete removes a document and broadcasts a remove event.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.docs[id]
	delete(m.docs, id)
	m.mu.Unlock()
	if ok {
		m.broadcast(Event{Type: EventRemoved, StyleID: id})
	}
	return nil
}

// List returns every document, enabled or not.
func (m *Memory) List(ctx context.Context) ([]style.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]style.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d.Clone())
	}
	sortByInstall(out)
	return out, nil
}

// Watch implements Watcher.
func (m *Memory) Watch(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (m *Memory) broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		// Drop rather than block on a slow consumer.
		select {
		case ch <- ev:
		default:
		}
	}
}

func sortByInstall(docs []style.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].InstalledAt.Equal(docs[j].InstalledAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].InstalledAt.Before(docs[j].InstalledAt)
	})
}
