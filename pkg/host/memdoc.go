package host

import (
	"context"
	"fmt"
	"sync"
)

// Capability names one delivery primitive group of a MemDocument, used
// to inject failures.
type Capability string

// Capabilities a MemDocument can be told to deny.
const (
	CapNode       Capability = "node"
	CapSheet      Capability = "sheet"
	CapPrivileged Capability = "privileged"
)

// MemDocument is an in-memory Document for tests and local sessions.
// It records inserted nodes and adopted sheets so callers can assert
// on residual artifacts, supports simulated navigation, and can be
// configured to fail any capability with an arbitrary error (commonly
// a *PolicyError).
type MemDocument struct {
	mu       sync.Mutex
	url      string
	nodes    map[NodeRef]memNode
	sheets   map[SheetRef]string
	priv     map[string]string // styleID -> css, privileged insertions
	deny     map[Capability]error
	nextRef  int
	privOK   bool
	handlers map[int]func(string)
	nextSub  int
}

type memNode struct {
	styleID string
	css     string
}

// MemOption configures a MemDocument.
type MemOption func(*MemDocument)

// WithPrivileged enables the privileged insertion capability.
func WithPrivileged() MemOption {
	return func(d *MemDocument) { d.privOK = true }
}

// WithDenial makes every call of the given capability fail with err.
func WithDenial(cap Capability, err error) MemOption {
	return func(d *MemDocument) { d.deny[cap] = err }
}

// NewMemDocument creates a MemDocument at url.
func NewMemDocument(url string, opts ...MemOption) *MemDocument {
	d := &MemDocument{
		url:      url,
		nodes:    make(map[NodeRef]memNode),
		sheets:   make(map[SheetRef]string),
		priv:     make(map[string]string),
		deny:     make(map[Capability]error),
		handlers: make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deny changes the failure injected for a capability at runtime. A nil
// err clears the denial.
func (d *MemDocument) Deny(cap Capability, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.deny, cap)
		return
	}
	d.deny[cap] = err
}

// URL returns the current simulated address.
func (d *MemDocument) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// Navigate updates the simulated address and fires every registered
// navigation handler with the new URL.
func (d *MemDocument) Navigate(url string) {
	d.mu.Lock()
	d.url = url
	handlers := make([]func(string), 0, len(d.handlers))
	for _, fn := range d.handlers {
		handlers = append(handlers, fn)
	}
	d.mu.Unlock()
	for _, fn := range handlers {
		fn(url)
	}
}

// OnNavigate implements Navigator.
func (d *MemDocument) OnNavigate(fn func(url string)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.handlers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers, id)
	}
}

func (d *MemDocument) InsertStyleNode(ctx context.Context, styleID, css string) (NodeRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.deny[CapNode]; err != nil {
		return "", err
	}
	d.nextRef++
	ref := NodeRef(fmt.Sprintf("node-%d", d.nextRef))
	d.nodes[ref] = memNode{styleID: styleID, css: css}
	return ref, nil
}

func (d *MemDocument) UpdateStyleNode(ctx context.Context, ref NodeRef, css string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.deny[CapNode]; err != nil {
		return err
	}
	n, ok := d.nodes[ref]
	if !ok {
		return fmt.Errorf("no such node %s", ref)
	}
	n.css = css
	d.nodes[ref] = n
	return nil
}

func (d *MemDocument) RemoveStyleNode(ctx context.Context, ref NodeRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.deny[CapNode]; err != nil {
		return err
	}
	if _, ok := d.nodes[ref]; !ok {
		return fmt.Errorf("no such node %s", ref)
	}
	delete(d.nodes, ref)
	return nil
}

func (d *MemDocument) FindStyleNode(ctx context.Context, styleID string) (NodeRef, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ref, n := range d.nodes {
		if n.styleID == styleID {
			return ref, true
		}
	}
	return "", false
}

func (d *MemDocument) ConstructSheet(ctx context.Context, css string) (SheetRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.deny[CapSheet]; err != nil {
		return "", err
	}
	d.nextRef++
	ref := SheetRef(fmt.Sprintf("sheet-%d", d.nextRef))
	d.sheets[ref] = css
	return ref, nil
}

func (d *MemDocument) ReplaceSheet(ctx context.Context, ref SheetRef, css string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.deny[CapSheet]; err != nil {
		return err
	}
	if _, ok := d.sheets[ref]; !ok {
		return fmt.Errorf("no such sheet %s", ref)
	}
	d.sheets[ref] = css
	return nil
}

func (d *MemDocument) ReleaseSheet(ctx context.Context, ref SheetRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sheets[ref]; !ok {
		return fmt.Errorf("no such sheet %s", ref)
	}
	delete(d.sheets, ref)
	return nil
}

// InsertCSS implements PrivilegedInserter when the capability is
// enabled via WithPrivileged.
func (d *MemDocument) InsertCSS(ctx context.Context, frameID, styleID, css string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.privOK {
		return fmt.Errorf("privileged insertion unavailable")
	}
	if err := d.deny[CapPrivileged]; err != nil {
		return err
	}
	d.priv[styleID] = css
	return nil
}

// RemoveCSS implements PrivilegedInserter.
func (d *MemDocument) RemoveCSS(ctx context.Context, frameID, styleID, css string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.privOK {
		return fmt.Errorf("privileged insertion unavailable")
	}
	delete(d.priv, styleID)
	return nil
}

// Privileged returns the document as a PrivilegedInserter, or nil when
// the capability is disabled.
func (d *MemDocument) Privileged() PrivilegedInserter {
	if d.privOK {
		return d
	}
	return nil
}

// NodeCount reports how many style nodes are currently inserted.
func (d *MemDocument) NodeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.nodes)
}

// SheetCount reports how many constructed sheets are currently adopted.
func (d *MemDocument) SheetCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sheets)
}

// ArtifactCount reports every residual delivery artifact: nodes,
// sheets, and privileged insertions.
func (d *MemDocument) ArtifactCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.nodes) + len(d.sheets) + len(d.priv)
}

// AppliedCSS returns the delivered text for styleID regardless of the
// mechanism used, and whether any artifact exists for it.
func (d *MemDocument) AppliedCSS(styleID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.nodes {
		if n.styleID == styleID {
			return n.css, true
		}
	}
	if css, ok := d.priv[styleID]; ok {
		return css, true
	}
	return "", false
}
