// Package memory provides the file-backed place catalog used when the
// catalog does not live in postgres.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// CatalogFile is the on-disk catalog format shared with cmd/ingestor.
type CatalogFile struct {
	Places []domain.CatalogEntry `json:"places"`
}

// Catalog is an immutable in-memory ports.PlaceCatalog.
type Catalog struct {
	entries []domain.CatalogEntry
}

func NewCatalog(entries []domain.CatalogEntry) *Catalog {
	return &Catalog{entries: entries}
}

// ReadCatalogFile parses and validates a catalog file.
func ReadCatalogFile(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f CatalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for i, e := range f.Places {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("catalog %s: place %d has no name", path, i)
		}
		if e.Coordinate != nil {
			if err := e.Coordinate.Validate(); err != nil {
				return nil, fmt.Errorf("catalog %s: place %q: %w", path, e.Name, err)
			}
		}
	}
	return &f, nil
}

// LoadCatalog reads path into a Catalog.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := ReadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(f.Places), nil
}

// LookupByCity returns entries whose city overlaps city in either direction.
// An empty city returns every entry.
func (c *Catalog) LookupByCity(_ context.Context, city string) ([]domain.CatalogEntry, error) {
	key := normalizeCity(city)
	if key == "" {
		return c.entries, nil
	}
	var out []domain.CatalogEntry
	for _, e := range c.entries {
		ec := normalizeCity(e.City)
		if ec != "" && (strings.Contains(ec, key) || strings.Contains(key, ec)) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len reports the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

func normalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
