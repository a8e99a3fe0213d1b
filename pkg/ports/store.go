package ports

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
)

// SessionStore defines the interface for persisting pipeline sessions.
// The pipeline treats it as a keyed blob store with read-modify-write semantics.
type SessionStore interface {
	// Save persists the session for a given session ID.
	Save(ctx context.Context, sessionID string, session *domain.Session) error

	// Load retrieves the session for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the session for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
