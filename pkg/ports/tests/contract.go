package tests

import (
	"context"
	"testing"

	"github.com/aretw0/canopy/pkg/ports"
)

// CatalogSourceContractTest is a reusable test suite that verifies if an adapter complies with ports.CatalogSource.
// wantIDs lists the identifiers the source was seeded with, in catalog order.
func CatalogSourceContractTest(t *testing.T, source ports.CatalogSource, wantIDs []string) {
	t.Helper()

	t.Run("Catalog_ReturnsSeed", func(t *testing.T) {
		got, err := source.Catalog(context.Background())
		if err != nil {
			t.Fatalf("unexpected error loading catalog: %v", err)
		}
		if len(got) != len(wantIDs) {
			t.Fatalf("catalog size mismatch: got %d, want %d", len(got), len(wantIDs))
		}
		for i, id := range wantIDs {
			if got[i].ID != id {
				t.Errorf("catalog order mismatch at %d: got %q, want %q", i, got[i].ID, id)
			}
		}
	})

	t.Run("Catalog_UniqueIDs", func(t *testing.T) {
		got, err := source.Catalog(context.Background())
		if err != nil {
			t.Fatalf("unexpected error loading catalog: %v", err)
		}
		seen := make(map[string]bool)
		for _, c := range got {
			if c.ID == "" {
				t.Error("candidate with empty id")
			}
			if seen[c.ID] {
				t.Errorf("duplicate candidate id %q", c.ID)
			}
			seen[c.ID] = true
		}
	})

	t.Run("Catalog_CallerOwnsSlice", func(t *testing.T) {
		first, err := source.Catalog(context.Background())
		if err != nil || len(first) == 0 {
			t.Skip("empty catalog")
		}
		first[0].ID = "mutated"
		second, err := source.Catalog(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second[0].ID == "mutated" {
			t.Error("catalog source leaked its internal slice")
		}
	})
}
