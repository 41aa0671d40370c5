package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

func testDoc(id string, enabled bool, installed time.Time) style.Document {
	return style.Document{
		ID:      id,
		Name:    id,
		Source:  "a { color: red; }",
		Enabled: enabled,
		Rules: []style.DomainRule{
			{Kind: style.RuleDomain, Pattern: "example.com", Include: true},
		},
		InstalledAt: installed,
	}
}

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	doc := testDoc("s1", true, time.Now())
	if err := m.Put(ctx, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "s1" {
		t.Errorf("Get = %+v", got)
	}

	if err := m.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Error("deleted style should be gone")
	}
	// Deleting an absent ID is a no-op.
	if err := m.Delete(ctx, "s1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestMemoryQueryFiltersDisabledAndOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := m.Put(ctx, testDoc("new", true, newer)); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(ctx, testDoc("old", true, older)); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(ctx, testDoc("off", false, older)); err != nil {
		t.Fatal(err)
	}

	docs, err := m.Query(ctx, "https://example.com/")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Query returned %d docs, want 2", len(docs))
	}
	if docs[0].ID != "old" || docs[1].ID != "new" {
		t.Errorf("order = [%s, %s], want installation order", docs[0].ID, docs[1].ID)
	}

	list, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("List returned %d docs, want 3 (disabled included)", len(list))
	}
}

func TestMemoryReturnsClones(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Put(ctx, testDoc("s1", true, time.Now())); err != nil {
		t.Fatal(err)
	}
	docs, _ := m.Query(ctx, "")
	docs[0].Rules[0].Pattern = "mutated.com"

	again, _ := m.Query(ctx, "")
	if again[0].Rules[0].Pattern != "example.com" {
		t.Error("Query must return deep copies")
	}
}

func TestMemoryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()

	events, err := m.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Put(ctx, testDoc("s1", true, time.Now())); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Type != EventUpdated || ev.StyleID != "s1" || ev.Doc == nil {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no update event")
	}

	if err := m.Delete(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Type != EventRemoved || ev.StyleID != "s1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no remove event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// A buffered event may still drain; the channel must close
			// shortly after.
			for range events {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestDirStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	d, err := NewDir(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	doc := testDoc("s1", true, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := d.Put(ctx, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A fresh store over the same directory sees the persisted file.
	d2, err := NewDir(d.root, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := d2.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "s1" || !got.Enabled {
		t.Errorf("Get = %+v", got)
	}

	if err := d2.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := d2.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Error("deleted style should be gone")
	}
}

func TestDirStoreQueryFiltersDisabled(t *testing.T) {
	ctx := context.Background()
	d, err := NewDir(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Put(ctx, testDoc("on", true, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := d.Put(ctx, testDoc("off", false, time.Now())); err != nil {
		t.Fatal(err)
	}

	docs, err := d.Query(ctx, "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "on" {
		t.Errorf("Query = %+v, want only the enabled style", docs)
	}
}

func TestDirStoreWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, err := NewDir(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	events, err := d.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := d.Put(ctx, testDoc("s1", true, time.Now())); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventUpdated && ev.StyleID == "s1" {
				return
			}
		case <-deadline:
			t.Fatal("no update event for written style file")
		}
	}
}
