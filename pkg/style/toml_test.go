package style

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleTOML = `
name = "dark reader"
source = "body { background: /*[[bg|color|#111]]*/#111; }"
enabled = true

[[rule]]
kind = "domain"
pattern = "example.com"
include = true

[[variable]]
name = "bg"
type = "color"
default = "#111"
`

func TestLoadFileFillsIDAndTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dark.toml")
	if err := os.WriteFile(path, []byte(sampleTOML), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.ID == "" {
		t.Error("missing ID should be filled with a UUID")
	}
	if doc.InstalledAt.IsZero() {
		t.Error("zero InstalledAt should be stamped")
	}
	if doc.Name != "dark reader" {
		t.Errorf("Name = %q", doc.Name)
	}
	if len(doc.Rules) != 1 || doc.Rules[0].Kind != RuleDomain {
		t.Errorf("Rules = %+v", doc.Rules)
	}
	if len(doc.Variables) != 1 || doc.Variables[0].Type != VarColor {
		t.Errorf("Variables = %+v", doc.Variables)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s1.toml")
	doc := &Document{
		ID:     "s1",
		Name:   "test",
		Source: "a { color: red; }",
		Rules: []DomainRule{
			{Kind: RuleURLPrefix, Pattern: "https://example.com/", Include: true},
		},
		Enabled:     true,
		InstalledAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Metadata:    map[string]string{"author": "tester"},
	}
	if err := Save(path, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.ID != doc.ID || got.Source != doc.Source || !got.Enabled {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.InstalledAt.Equal(doc.InstalledAt) {
		t.Errorf("InstalledAt = %v, want %v", got.InstalledAt, doc.InstalledAt)
	}
	if got.Metadata["author"] != "tester" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
}

func TestLoadDirOrdersByInstallTime(t *testing.T) {
	dir := t.TempDir()
	older := &Document{ID: "older", Enabled: true, InstalledAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := &Document{ID: "newer", Enabled: true, InstalledAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	// Write newest first to prove ordering is not directory order.
	if err := Save(filepath.Join(dir, "a.toml"), newer); err != nil {
		t.Fatal(err)
	}
	if err := Save(filepath.Join(dir, "b.toml"), older); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("LoadDir returned %d docs, want 2", len(docs))
	}
	if docs[0].ID != "older" || docs[1].ID != "newer" {
		t.Errorf("order = [%s, %s], want [older, newer]", docs[0].ID, docs[1].ID)
	}
}

func TestLoadDirSkipsNonTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("LoadDir = %d docs, want 0", len(docs))
	}
}
