package memory

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
)

// Catalog is a fixed, in-memory candidate catalog.
type Catalog struct {
	candidates []domain.Candidate
}

// NewCatalog creates a catalog over a copy of candidates.
func NewCatalog(candidates []domain.Candidate) *Catalog {
	return &Catalog{candidates: domain.CloneCandidates(candidates)}
}

// Catalog returns a fresh copy of the catalog; callers own the slice.
func (c *Catalog) Catalog(ctx context.Context) ([]domain.Candidate, error) {
	return domain.CloneCandidates(c.candidates), nil
}

// Len returns the catalog size.
func (c *Catalog) Len() int {
	return len(c.candidates)
}
