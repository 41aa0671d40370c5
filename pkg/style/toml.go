package style

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// FileExt is the extension of on-disk style documents.
const FileExt = ".toml"

// Parse decodes a TOML style document. Documents without an ID are
// assigned a fresh UUID; an empty name falls back to fallbackName and a
// zero InstalledAt is stamped with the current time. The document is
// validated before return.
func Parse(data []byte, fallbackName string) (*Document, error) {
	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Name == "" {
		doc.Name = fallbackName
	}
	if doc.InstalledAt.IsZero() {
		doc.InstalledAt = time.Now()
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads a style document from a TOML file, using the file name
// as the fallback style name.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data, strings.TrimSuffix(filepath.Base(path), FileExt))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// LoadDir reads every *.toml style document directly under dir,
// ordered by installation time (ties broken by ID for determinism).
// A directory with no style files is not an error.
func LoadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		doc, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].InstalledAt.Equal(docs[j].InstalledAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].InstalledAt.Before(docs[j].InstalledAt)
	})
	return docs, nil
}

// Save writes a style document as TOML to path.
func Save(path string, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
