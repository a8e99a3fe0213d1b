// Package sqlite provides a catalog source backed by a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// Catalog is a ports.CatalogSource reading the species table.
type Catalog struct {
	db *sql.DB
}

var _ ports.CatalogSource = (*Catalog)(nil)

// Open opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for an ephemeral catalog.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS species (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		scientific_name TEXT NOT NULL DEFAULT '',
		attributes TEXT
	)`)
	return err
}

// Catalog returns every species in insertion order.
func (c *Catalog) Catalog(ctx context.Context) ([]domain.Candidate, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, scientific_name, attributes FROM species ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query species: %w", err)
	}
	defer rows.Close()

	out := []domain.Candidate{}
	for rows.Next() {
		var (
			cand  domain.Candidate
			attrs sql.NullString
		)
		if err := rows.Scan(&cand.ID, &cand.Name, &cand.ScientificName, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan species: %w", err)
		}
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &cand.Attributes); err != nil {
				return nil, fmt.Errorf("species %s: invalid attributes: %w", cand.ID, err)
			}
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// Put inserts or replaces species in one transaction.
func (c *Catalog) Put(ctx context.Context, candidates ...domain.Candidate) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO species (id, name, scientific_name, attributes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			scientific_name = excluded.scientific_name,
			attributes = excluded.attributes`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, cand := range candidates {
		if cand.ID == "" {
			return fmt.Errorf("species without id")
		}
		var attrs any
		if len(cand.Attributes) > 0 {
			data, err := json.Marshal(cand.Attributes)
			if err != nil {
				return fmt.Errorf("species %s: failed to marshal attributes: %w", cand.ID, err)
			}
			attrs = string(data)
		}
		if _, err := stmt.ExecContext(ctx, cand.ID, cand.Name, cand.ScientificName, attrs); err != nil {
			return fmt.Errorf("species %s: %w", cand.ID, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of species.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM species`).Scan(&n)
	return n, err
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
