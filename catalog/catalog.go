// Package catalog maps sample identifiers to their retrieval locations.
package catalog

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultSample is the identifier shipped with the default catalog
const DefaultSample = "hihat"

// ErrEmpty is returned when a catalog would contain no samples
var ErrEmpty = errors.New("catalog has no samples")

// Catalog is an immutable sample identifier to location mapping
type Catalog struct {
	locations map[string]string
	ids       []string
}

// file is the on-disk YAML layout
type file struct {
	Samples map[string]string `yaml:"samples"`
}

// New copies entries into a catalog; empty ids or locations are rejected
func New(entries map[string]string) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}

	c := &Catalog{
		locations: make(map[string]string, len(entries)),
		ids:       make([]string, 0, len(entries)),
	}
	for id, loc := range entries {
		if id == "" {
			return nil, errors.New("catalog entry with empty identifier")
		}
		if loc == "" {
			return nil, errors.Errorf("catalog entry %q has no location", id)
		}
		c.locations[id] = loc
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)
	return c, nil
}

// Default returns the catalog of the sample deployment
func Default() *Catalog {
	c, _ := New(map[string]string{
		DefaultSample: "static/sounds/hihat.wav",
	})
	return c
}

// Parse reads a YAML catalog document
//
//	samples:
//	  hihat: static/sounds/hihat.wav
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	return New(f.Samples)
}

// LoadFile reads and parses a YAML catalog file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return c, nil
}

// Lookup returns the location for id
func (c *Catalog) Lookup(id string) (string, bool) {
	if c == nil {
		return "", false
	}
	loc, ok := c.locations[id]
	return loc, ok
}

// IDs returns all identifiers in sorted order
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.ids...)
}

// Len returns the number of samples
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

// Merge returns a new catalog with overrides applied on top of c
func (c *Catalog) Merge(overrides map[string]string) (*Catalog, error) {
	merged := make(map[string]string, c.Len()+len(overrides))
	if c != nil {
		for id, loc := range c.locations {
			merged[id] = loc
		}
	}
	for id, loc := range overrides {
		merged[id] = loc
	}
	return New(merged)
}
