// Package loader reads chain definitions from YAML or JSON files and
// validates them before they reach the engine.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sinteflow/sinte/internal/validation"
	"github.com/sinteflow/sinte/pkg/schema"
)

// SchedulesFile is the file in a chains directory that declares cron
// triggers rather than a chain.
const SchedulesFile = "schedules.yaml"

var chainExts = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// Entry is a loaded, valid chain.
type Entry struct {
	Definition *schema.Definition
	Path       string
	Warnings   []schema.ValidationIssue
}

// Name returns the chain name: the definition's own name, or the file name
// without extension.
func (e *Entry) Name() string {
	if e.Definition.Name != "" {
		return e.Definition.Name
	}
	base := filepath.Base(e.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Loader decodes and validates chain documents.
type Loader struct {
	validator *validation.Validator
}

// New creates a Loader that validates with v.
func New(v *validation.Validator) *Loader {
	return &Loader{validator: v}
}

// Load decodes one document from r. YAML and JSON are both accepted. A
// document with validation errors is rejected with a VALIDATION_ERROR that
// lists every issue; warnings are returned alongside a valid definition.
func (l *Loader) Load(r io.Reader) (*schema.Definition, []schema.ValidationIssue, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, nil, err
	}

	def, result := l.validator.ValidateDocument(doc)
	if err := result.ToError(); err != nil {
		return nil, result.Warnings, err
	}
	return def, result.Warnings, nil
}

// Decode reads one YAML or JSON document into generic maps and slices.
func Decode(r io.Reader) (any, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, schema.NewError(schema.ErrCodeValidation, "chain document is empty")
		}
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode chain: %s", err.Error()).WithCause(err)
	}
	return doc, nil
}

// LoadFile loads the chain stored at path.
func (l *Loader) LoadFile(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain: %w", err)
	}
	defer f.Close()

	def, warnings, err := l.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Entry{Definition: def, Path: path, Warnings: warnings}, nil
}

// LoadDir loads every chain file directly under dir. Files that fail to
// load are reported together; the catalog holds the ones that loaded.
func (l *Loader) LoadDir(dir string) (*Catalog, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chains dir: %w", err)
	}

	cat := NewCatalog()
	var errs []error
	for _, f := range files {
		if f.IsDir() || f.Name() == SchedulesFile || !chainExts[strings.ToLower(filepath.Ext(f.Name()))] {
			continue
		}
		entry, err := l.LoadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := cat.Add(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return cat, errors.Join(errs...)
}

// Catalog holds loaded chains by name.
type Catalog struct {
	entries map[string]*Entry
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]*Entry)}
}

// Add registers entry under its name. Two files may not share a name.
func (c *Catalog) Add(entry *Entry) error {
	name := entry.Name()
	if prev, ok := c.entries[name]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "chain %q is defined in both %s and %s",
			name, prev.Path, entry.Path)
	}
	c.entries[name] = entry
	return nil
}

// Get returns the chain called name.
func (c *Catalog) Get(name string) (*Entry, error) {
	entry, ok := c.entries[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "chain %q not found", name)
	}
	return entry, nil
}

// Names returns the chain names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of chains.
func (c *Catalog) Len() int { return len(c.entries) }
