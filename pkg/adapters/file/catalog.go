package file

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// catalogKeys are the envelope keys accepted around the species list.
var catalogKeys = []string{"candidates", "species", "trees"}

// Catalog is a ports.CatalogSource reading a JSON or YAML species file.
// The file is parsed once, on first use.
type Catalog struct {
	path string

	once       sync.Once
	candidates []domain.Candidate
	err        error
}

var _ ports.CatalogSource = (*Catalog)(nil)

// NewCatalog creates a catalog backed by the file at path.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Catalog returns a copy of the parsed species list.
func (c *Catalog) Catalog(ctx context.Context) ([]domain.Candidate, error) {
	c.once.Do(func() {
		c.candidates, c.err = ReadCatalog(c.path)
	})
	if c.err != nil {
		return nil, c.err
	}
	return domain.CloneCandidates(c.candidates), nil
}

// ReadCatalog parses the species file at path with ParseCatalog.
func ReadCatalog(path string) ([]domain.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	out, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return out, nil
}

// ParseCatalog decodes a species document. The top level is either a list of
// records or a map holding the list under "candidates", "species" or "trees".
// Keys other than id, name and scientific_name become attributes.
func ParseCatalog(data []byte) ([]domain.Candidate, error) {
	// YAML is a superset of JSON, so one parser covers both.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	list, err := catalogList(doc)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(list))
	seen := make(map[string]bool, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is not an object", i)
		}
		var cand domain.Candidate
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &cand,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if cand.ID == "" {
			return nil, fmt.Errorf("record %d: missing id", i)
		}
		if seen[cand.ID] {
			return nil, fmt.Errorf("duplicate id %q", cand.ID)
		}
		seen[cand.ID] = true
		if len(cand.Attributes) == 0 {
			cand.Attributes = nil
		}
		out = append(out, cand)
	}
	return out, nil
}

func catalogList(doc any) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range catalogKeys {
			if list, ok := v[key].([]any); ok {
				return list, nil
			}
		}
		return nil, fmt.Errorf("no species list found")
	case nil:
		return []any{}, nil
	default:
		return nil, fmt.Errorf("unexpected top-level %T", doc)
	}
}
