package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// UpdateFunc receives a private copy of the session and returns the next state.
// Returning nil means "no change": nothing is committed.
type UpdateFunc func(ctx context.Context, current *domain.Session) (*domain.Session, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store   ports.SessionStore
	catalog ports.CatalogSource

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock expiry (default DefaultLockTTL).
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new Session Manager backed by store, seeding fresh
// sessions from catalog.
func NewManager(store ports.SessionStore, catalog ports.CatalogSource, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		catalog: catalog,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even when the caller has gone away, or the lock lingers for its TTL.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Load returns the stored session, initializing (and persisting) a fresh one
// seeded with the full catalog when the store has never seen sessionID.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		s, err = m.loadOrInit(ctx, sessionID)
		return err
	})
	return s, err
}

// Commit persists next as the new state of sessionID. It refuses to move the
// stage index backwards and fails with domain.ErrRevisionConflict when the
// stored revision no longer matches next.Revision.
func (m *Manager) Commit(ctx context.Context, sessionID string, next *domain.Session) (*domain.Session, error) {
	var out *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		out, err = m.commitLocked(ctx, sessionID, next, false)
		return err
	})
	return out, err
}

// Update runs a forward-only read-modify-write cycle under the session lock.
func (m *Manager) Update(ctx context.Context, sessionID string, fn UpdateFunc) (*domain.Session, error) {
	var out *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		current, err := m.loadOrInit(ctx, sessionID)
		if err != nil {
			return err
		}
		next, err := fn(ctx, current.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			out = current
			return nil
		}
		out, err = m.commitLocked(ctx, sessionID, next, false)
		return err
	})
	return out, err
}

// Rewind moves the stage index back by one (floor 1). Parameters and
// candidates are left exactly as they were. A session past lastStage is
// complete and does not move; only Reset leaves that state.
func (m *Manager) Rewind(ctx context.Context, sessionID string, lastStage int) (*domain.Session, error) {
	var out *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		current, err := m.loadOrInit(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.StageIndex <= 1 || current.StageIndex > lastStage {
			out = current
			return nil
		}
		next := current.Clone()
		next.StageIndex--
		next.History = append(next.History, next.StageIndex)
		out, err = m.commitLocked(ctx, sessionID, next, true)
		return err
	})
	return out, err
}

// Reset discards the session and returns a fresh one at stage 1 over the full catalog.
func (m *Manager) Reset(ctx context.Context, sessionID string) (*domain.Session, error) {
	var out *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if err := m.store.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		var err error
		out, err = m.initLocked(ctx, sessionID)
		return err
	})
	return out, err
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// Catalog fetches the full catalog from the configured source.
func (m *Manager) Catalog(ctx context.Context) ([]domain.Candidate, error) {
	if m.catalog == nil {
		return nil, nil
	}
	return m.catalog.Catalog(ctx)
}

func (m *Manager) loadOrInit(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.store.Load(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
	return m.initLocked(ctx, sessionID)
}

func (m *Manager) initLocked(ctx context.Context, sessionID string) (*domain.Session, error) {
	catalog, err := m.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	s := domain.NewSession(sessionID, catalog)
	s.CreatedAt = m.now()
	s.UpdatedAt = s.CreatedAt

	// Persist immediately so the catalog is queried once per fresh session.
	if err := m.store.Save(ctx, sessionID, s); err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	m.logger.Debug("Session initialized", "session_id", sessionID, "catalog_size", len(catalog))
	return s, nil
}

func (m *Manager) commitLocked(ctx context.Context, sessionID string, next *domain.Session, allowRewind bool) (*domain.Session, error) {
	stored, err := m.store.Load(ctx, sessionID)
	switch {
	case err == nil:
		if stored.Revision != next.Revision {
			return nil, fmt.Errorf("%w: stored=%d submitted=%d", domain.ErrRevisionConflict, stored.Revision, next.Revision)
		}
		if !allowRewind && next.StageIndex < stored.StageIndex {
			return nil, fmt.Errorf("%w: %d -> %d", domain.ErrStageRegression, stored.StageIndex, next.StageIndex)
		}
	case errors.Is(err, domain.ErrSessionNotFound):
		// Expired or deleted between load and commit; the write recreates it.
	default:
		return nil, fmt.Errorf("failed to read session before commit: %w", err)
	}

	out := next.Clone()
	out.ID = sessionID
	out.Revision = next.Revision + 1
	out.UpdatedAt = m.now()

	if err := m.store.Save(ctx, sessionID, out); err != nil {
		return nil, fmt.Errorf("failed to commit session: %w", err)
	}
	return out, nil
}
