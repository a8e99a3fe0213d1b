package ports

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
)

// CatalogSource provides the initial full candidate set.
// It is queried once per fresh session.
type CatalogSource interface {
	Catalog(ctx context.Context) ([]domain.Candidate, error)
}

// CatalogFunc adapts a function to CatalogSource.
type CatalogFunc func(ctx context.Context) ([]domain.Candidate, error)

// Catalog calls f.
func (f CatalogFunc) Catalog(ctx context.Context) ([]domain.Candidate, error) {
	return f(ctx)
}
