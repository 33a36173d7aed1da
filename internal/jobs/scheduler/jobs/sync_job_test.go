package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sync-server/internal/observability"
	"sync-server/internal/platforms"
	"sync-server/internal/store"
	syncProcessor "sync-server/internal/sync/processor"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	integrations []store.Integration
	err          error
	cutoff       time.Time
}

func (f *fakeLister) ListDueIntegrations(ctx context.Context, cutoff time.Time) ([]store.Integration, error) {
	f.cutoff = cutoff
	return f.integrations, f.err
}

type fakeSyncer struct {
	mu      sync.Mutex
	synced  []uuid.UUID
	failing map[uuid.UUID]bool
	err     error
}

func (f *fakeSyncer) SyncIntegrationByID(ctx context.Context, integrationID uuid.UUID, dr platforms.DateRange) (syncProcessor.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return syncProcessor.SyncResult{}, f.err
	}
	f.synced = append(f.synced, integrationID)
	if f.failing[integrationID] {
		return syncProcessor.SyncResult{Success: false, Error: "fetch failed"}, nil
	}
	return syncProcessor.SyncResult{Success: true}, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[uuid.UUID]bool
	released []uuid.UUID
}

func (f *fakeLocker) Acquire(ctx context.Context, integrationID uuid.UUID) (func(), bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[integrationID] {
		return func() {}, false, nil
	}
	release := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.released = append(f.released, integrationID)
	}
	return release, true, nil
}

// selectingLister mirrors the store's due-integration predicate: active, and
// either never synced or last synced before the cutoff.
type selectingLister struct {
	integrations []store.Integration
}

func (f *selectingLister) ListDueIntegrations(ctx context.Context, cutoff time.Time) ([]store.Integration, error) {
	var due []store.Integration
	for _, integration := range f.integrations {
		if !integration.IsActive {
			continue
		}
		if integration.LastSyncAt == nil || integration.LastSyncAt.Before(cutoff) {
			due = append(due, integration)
		}
	}
	return due, nil
}

func dueIntegration(provider string) store.Integration {
	return store.Integration{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Provider: provider,
		IsActive: true,
		Status:   store.IntegrationStatusActive,
	}
}

func TestIntegrationSyncJob_Run(t *testing.T) {
	t.Parallel()
	logger := observability.NewLogger()

	t.Run("syncs every due integration and releases all leases", func(t *testing.T) {
		t.Parallel()

		integrations := []store.Integration{
			dueIntegration(store.PlatformFacebook),
			dueIntegration(store.PlatformTikTok),
			dueIntegration(store.PlatformShopee),
		}
		lister := &fakeLister{integrations: integrations}
		syncer := &fakeSyncer{}
		locker := &fakeLocker{}

		job := NewIntegrationSyncJob(lister, syncer, locker, time.Hour, 2, logger)
		err := job.Run(context.Background())

		require.NoError(t, err)
		assert.Len(t, syncer.synced, 3)
		assert.Len(t, locker.released, 3)
	})

	t.Run("cutoff is one interval before now", func(t *testing.T) {
		t.Parallel()

		lister := &fakeLister{}
		job := NewIntegrationSyncJob(lister, &fakeSyncer{}, &fakeLocker{}, time.Hour, 2, logger)

		before := time.Now().Add(-time.Hour)
		require.NoError(t, job.Run(context.Background()))
		after := time.Now().Add(-time.Hour)

		assert.False(t, lister.cutoff.Before(before))
		assert.False(t, lister.cutoff.After(after))
	})

	t.Run("only never-synced and stale integrations are selected", func(t *testing.T) {
		t.Parallel()

		neverSynced := dueIntegration(store.PlatformFacebook)
		fresh := dueIntegration(store.PlatformTikTok)
		freshAt := time.Now().Add(-30 * time.Minute)
		fresh.LastSyncAt = &freshAt
		stale := dueIntegration(store.PlatformShopee)
		staleAt := time.Now().Add(-90 * time.Minute)
		stale.LastSyncAt = &staleAt

		lister := &selectingLister{integrations: []store.Integration{neverSynced, fresh, stale}}
		syncer := &fakeSyncer{}

		job := NewIntegrationSyncJob(lister, syncer, &fakeLocker{}, time.Hour, 2, logger)
		require.NoError(t, job.Run(context.Background()))

		assert.ElementsMatch(t, []uuid.UUID{neverSynced.ID, stale.ID}, syncer.synced)
	})

	t.Run("skips integrations leased by another instance", func(t *testing.T) {
		t.Parallel()

		leased := dueIntegration(store.PlatformLine)
		free := dueIntegration(store.PlatformFacebook)
		lister := &fakeLister{integrations: []store.Integration{leased, free}}
		syncer := &fakeSyncer{}
		locker := &fakeLocker{held: map[uuid.UUID]bool{leased.ID: true}}

		job := NewIntegrationSyncJob(lister, syncer, locker, time.Hour, 2, logger)
		require.NoError(t, job.Run(context.Background()))

		require.Len(t, syncer.synced, 1)
		assert.Equal(t, free.ID, syncer.synced[0])
	})

	t.Run("one failing integration does not stop the rest", func(t *testing.T) {
		t.Parallel()

		failing := dueIntegration(store.PlatformTikTok)
		healthy := dueIntegration(store.PlatformFacebook)
		lister := &fakeLister{integrations: []store.Integration{failing, healthy}}
		syncer := &fakeSyncer{failing: map[uuid.UUID]bool{failing.ID: true}}
		locker := &fakeLocker{}

		job := NewIntegrationSyncJob(lister, syncer, locker, time.Hour, 2, logger)
		require.NoError(t, job.Run(context.Background()))

		assert.Len(t, syncer.synced, 2)
		assert.Len(t, locker.released, 2)
	})

	t.Run("returns error when listing fails", func(t *testing.T) {
		t.Parallel()

		lister := &fakeLister{err: errors.New("connection refused")}
		job := NewIntegrationSyncJob(lister, &fakeSyncer{}, &fakeLocker{}, time.Hour, 2, logger)

		err := job.Run(context.Background())
		assert.Error(t, err)
	})
}

type fakePurger struct {
	purged int64
	err    error
	calls  int
}

func (f *fakePurger) PurgeExpiredStates(ctx context.Context) (int64, error) {
	f.calls++
	return f.purged, f.err
}

func TestOAuthStatePurgeJob_Run(t *testing.T) {
	t.Parallel()
	logger := observability.NewLogger()

	t.Run("purges expired states", func(t *testing.T) {
		t.Parallel()

		purger := &fakePurger{purged: 7}
		job := NewOAuthStatePurgeJob(purger, time.Hour, logger)

		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, 1, purger.calls)
	})

	t.Run("propagates purge errors", func(t *testing.T) {
		t.Parallel()

		purger := &fakePurger{err: errors.New("db down")}
		job := NewOAuthStatePurgeJob(purger, time.Hour, logger)

		assert.Error(t, job.Run(context.Background()))
	})
}
