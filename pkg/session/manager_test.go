package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	inner *memory.Store
}

func (s *SlowStore) Save(ctx context.Context, id string, sess *domain.Session) error {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.inner.Save(ctx, id, sess)
}

func (s *SlowStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.inner.Load(ctx, id)
}

func (s *SlowStore) Delete(ctx context.Context, id string) error { return s.inner.Delete(ctx, id) }
func (s *SlowStore) List(ctx context.Context) ([]string, error)  { return s.inner.List(ctx) }

func catalogOf(n int) ports.CatalogSource {
	c := make([]domain.Candidate, n)
	for i := range c {
		c[i] = domain.Candidate{ID: fmt.Sprintf("t%d", i)}
	}
	return memory.NewCatalog(c)
}

func TestManager_LoadInitializesFreshSession(t *testing.T) {
	calls := 0
	catalog := ports.CatalogFunc(func(ctx context.Context) ([]domain.Candidate, error) {
		calls++
		return []domain.Candidate{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}, nil
	})
	mgr := session.NewManager(memory.NewStore(), catalog)
	ctx := context.Background()

	s, err := mgr.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, s.StageIndex)
	assert.Empty(t, s.Parameters)
	assert.Len(t, s.Candidates, 3)
	assert.Equal(t, 3, s.CatalogSize)

	// Second load must come from the store, not the catalog.
	_, err = mgr.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestManager_CatalogFailure(t *testing.T) {
	catalog := ports.CatalogFunc(func(ctx context.Context) ([]domain.Candidate, error) {
		return nil, errors.New("db down")
	})
	mgr := session.NewManager(memory.NewStore(), catalog)

	_, err := mgr.Load(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestManager_CommitRoundTrip(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), catalogOf(10))
	ctx := context.Background()

	s, err := mgr.Load(ctx, "rt")
	require.NoError(t, err)

	s.SetParameter(3, "soil_salt", domain.RangeParameter(2.0, 4.0))
	s.StageIndex = 4
	committed, err := mgr.Commit(ctx, "rt", s)
	require.NoError(t, err)
	assert.Equal(t, s.Revision+1, committed.Revision)

	loaded, err := mgr.Load(ctx, "rt")
	require.NoError(t, err)
	p, ok := loaded.Parameter("soil_salt")
	require.True(t, ok)
	assert.Equal(t, domain.Interval{From: 2.0, To: 4.0}, p.Range)
}

func TestManager_CommitRejectsRegression(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), catalogOf(3))
	ctx := context.Background()

	_, err := mgr.Update(ctx, "reg", func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
		s.StageIndex = 5
		return s, nil
	})
	require.NoError(t, err)

	_, err = mgr.Update(ctx, "reg", func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
		s.StageIndex = 2
		return s, nil
	})
	assert.ErrorIs(t, err, domain.ErrStageRegression)

	s, err := mgr.Load(ctx, "reg")
	require.NoError(t, err)
	assert.Equal(t, 5, s.StageIndex)
}

func TestManager_CommitRevisionConflict(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), catalogOf(3))
	ctx := context.Background()

	tab1, err := mgr.Load(ctx, "tabs")
	require.NoError(t, err)
	tab2 := tab1.Clone()

	tab1.StageIndex = 2
	_, err = mgr.Commit(ctx, "tabs", tab1)
	require.NoError(t, err)

	// The second tab still holds the old revision.
	tab2.StageIndex = 2
	_, err = mgr.Commit(ctx, "tabs", tab2)
	assert.ErrorIs(t, err, domain.ErrRevisionConflict)
}

func TestManager_UpdateNilMeansNoCommit(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), catalogOf(3))
	ctx := context.Background()

	before, err := mgr.Load(ctx, "noop")
	require.NoError(t, err)

	after, err := mgr.Update(ctx, "noop", func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
		s.StageIndex = 9 // mutating the copy must not leak
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, 1, after.StageIndex)
}

func TestManager_UpdateErrorLeavesSessionUntouched(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), catalogOf(3))
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := mgr.Update(ctx, "err", func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
		s.Candidates = nil
		return s, boom
	})
	assert.ErrorIs(t, err, boom)

	s, err := mgr.Load(ctx, "err")
	require.NoError(t, err)
	assert.Len(t, s.Candidates, 3)
}

func TestManager_Rewind(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), catalogOf(4))
	ctx := context.Background()

	_, err := mgr.Update(ctx, "back", func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
		s.SetParameter(1, "land_form", domain.OptionParameter("LF01"))
		s.Candidates = s.Candidates[:2]
		s.StageIndex = 2
		return s, nil
	})
	require.NoError(t, err)

	s, err := mgr.Rewind(ctx, "back", 23)
	require.NoError(t, err)
	assert.Equal(t, 1, s.StageIndex)
	assert.Len(t, s.Candidates, 2, "rewind must not restore candidates")
	assert.Len(t, s.Parameters, 1, "rewind must not drop parameters")

	// Floor at stage 1.
	s, err = mgr.Rewind(ctx, "back", 23)
	require.NoError(t, err)
	assert.Equal(t, 1, s.StageIndex)
}

func TestManager_RewindStopsAtCompletedSession(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), catalogOf(3))
	ctx := context.Background()

	done, err := mgr.Update(ctx, "done", func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
		s.StageIndex = 24
		return s, nil
	})
	require.NoError(t, err)

	s, err := mgr.Rewind(ctx, "done", 23)
	require.NoError(t, err)
	assert.Equal(t, 24, s.StageIndex)
	assert.Equal(t, done.Revision, s.Revision, "no commit happens")
}

func TestManager_Reset(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), catalogOf(7))
	ctx := context.Background()

	_, err := mgr.Update(ctx, "r", func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
		s.SetParameter(1, "land_form", domain.OptionParameter("LF01"))
		s.Candidates = s.Candidates[:1]
		s.StageIndex = 2
		return s, nil
	})
	require.NoError(t, err)

	s, err := mgr.Reset(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 1, s.StageIndex)
	assert.Empty(t, s.Parameters)
	assert.Len(t, s.Candidates, 7)
	assert.Equal(t, int64(0), s.Revision)
}

func TestManager_SerializesConcurrentUpdates(t *testing.T) {
	store := &SlowStore{inner: memory.NewStore()}
	mgr := session.NewManager(store, catalogOf(1))
	ctx := context.Background()
	id := "race-test"

	var wg sync.WaitGroup
	writers := 10
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Update(ctx, id, func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
				s.StageIndex++
				return s, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Without the lock, read-modify-write would lose increments (or hit revision conflicts).
	s, err := mgr.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1+writers, s.StageIndex)
	assert.Equal(t, int64(writers), s.Revision)
}

type recordingLocker struct {
	mu         sync.Mutex
	locked     []string
	unlocked   int
	unlockErrs []error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.locked = append(l.locked, key)
	l.mu.Unlock()
	return func(ctx context.Context) error {
		l.mu.Lock()
		l.unlocked++
		l.unlockErrs = append(l.unlockErrs, ctx.Err())
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_UsesDistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	mgr := session.NewManager(memory.NewStore(), catalogOf(1), session.WithLocker(locker))

	_, err := mgr.Load(context.Background(), "dl")
	require.NoError(t, err)

	assert.Equal(t, []string{"dl"}, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
}

func TestManager_ReleasesLockAfterCallerCancels(t *testing.T) {
	locker := &recordingLocker{}
	mgr := session.NewManager(memory.NewStore(), catalogOf(1), session.WithLocker(locker))

	ctx, cancel := context.WithCancel(context.Background())
	err := mgr.WithLock(ctx, "gone", func(context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, 1, locker.unlocked)
	assert.NoError(t, locker.unlockErrs[0], "unlock must not inherit the cancelled context")
}
