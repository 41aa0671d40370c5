package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/charmbracelet/log"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// Dir is a Store over a directory of TOML style documents, one file
// per style. Watch turns file-system changes in the directory into
// update/remove events, so edits made with any editor propagate to a
// running controller.
type Dir struct {
	root   string
	logger *log.Logger

	mu     sync.Mutex
	docs   map[string]style.Document // id -> doc
	byPath map[string]string         // absolute path -> id
}

// NewDir creates a directory-backed store rooted at root and loads
// every style document in it. The directory is created if absent.
func NewDir(root string, logger *log.Logger) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	d := &Dir{
		root:   root,
		logger: logger,
		docs:   make(map[string]style.Document),
		byPath: make(map[string]string),
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	docs, err := style.LoadDir(root)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		d.docs[doc.ID] = doc
		d.byPath[d.pathFor(doc.ID)] = doc.ID
	}
	return d, nil
}

func (d *Dir) pathFor(id string) string {
	return filepath.Join(d.root, id+style.FileExt)
}

// Query returns every enabled document, ordered by installation time.
func (d *Dir) Query(ctx context.Context, url string) ([]style.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []style.Document
	for _, doc := range d.docs {
		if doc.Enabled {
			out = append(out, doc.Clone())
		}
	}
	sortByInstall(out)
	return out, nil
}

// Get returns the document with the given ID.
func (d *Dir) Get(ctx context.Context, id string) (*style.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := doc.Clone()
	return &c, nil
}

// Put writes the document to disk and updates the cache.
func (d *Dir) Put(ctx context.Context, doc style.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	path := d.pathFor(doc.ID)
	if err := style.Save(path, &doc); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[doc.ID] = doc.Clone()
	d.byPath[path] = doc.ID
	return nil
}

// Delete removes the document's file and cache entry.
func (d *Dir) Delete(ctx context.Context, id string) error {
	path := d.pathFor(id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, id)
	delete(d.byPath, path)
	return nil
}

// List returns every document, enabled or not.
func (d *Dir) List(ctx context.Context) ([]style.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]style.Document, 0, len(d.docs))
	for _, doc := range d.docs {
		out = append(out, doc.Clone())
	}
	sortByInstall(out)
	return out, nil
}

// Watch implements Watcher via fsnotify. A written or created .toml
// file becomes an update event, a removed or renamed one a remove
// event. Files that fail to parse are logged and skipped.
func (d *Dir) Watch(ctx context.Context) (<-chan Event, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(d.root); err != nil {
		w.Close()
		return nil, err
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fe, ok := <-w.Events:
				if !ok {
					return
				}
				if ev, ok := d.translate(fe); ok {
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				d.logger.Warn("style directory watch error", "err", werr)
			}
		}
	}()
	return ch, nil
}

// translate converts one file-system event into a registry event,
// updating the cache along the way.
func (d *Dir) translate(fe fsnotify.Event) (Event, bool) {
	if !strings.HasSuffix(fe.Name, style.FileExt) {
		return Event{}, false
	}
	path := fe.Name

	switch {
	case fe.Op.Has(fsnotify.Create) || fe.Op.Has(fsnotify.Write):
		doc, err := style.LoadFile(path)
		if err != nil {
			d.logger.Warn("ignoring unparseable style file", "path", path, "err", err)
			return Event{}, false
		}
		d.mu.Lock()
		d.docs[doc.ID] = doc.Clone()
		d.byPath[path] = doc.ID
		d.mu.Unlock()
		return Event{Type: EventUpdated, StyleID: doc.ID, Doc: doc}, true

	case fe.Op.Has(fsnotify.Remove) || fe.Op.Has(fsnotify.Rename):
		d.mu.Lock()
		id, known := d.byPath[path]
		if known {
			delete(d.docs, id)
			delete(d.byPath, path)
		}
		d.mu.Unlock()
		if !known {
			return Event{}, false
		}
		return Event{Type: EventRemoved, StyleID: id}, true
	}
	return Event{}, false
}
