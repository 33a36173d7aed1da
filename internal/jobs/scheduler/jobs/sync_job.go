package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sync-server/internal/observability"
	"sync-server/internal/platforms"
	"sync-server/internal/store"
	syncProcessor "sync-server/internal/sync/processor"

	"github.com/google/uuid"
)

// DueIntegrationLister selects integrations whose last sync is older than the cutoff.
type DueIntegrationLister interface {
	ListDueIntegrations(ctx context.Context, cutoff time.Time) ([]store.Integration, error)
}

// IntegrationSyncer runs a full sync for one integration.
type IntegrationSyncer interface {
	SyncIntegrationByID(ctx context.Context, integrationID uuid.UUID, dr platforms.DateRange) (syncProcessor.SyncResult, error)
}

// SyncLocker leases an integration so only one instance syncs it at a time.
type SyncLocker interface {
	Acquire(ctx context.Context, integrationID uuid.UUID) (release func(), acquired bool, err error)
}

// IntegrationSyncJob periodically syncs every integration that is due.
// An integration is due when it has never synced or when its last sync
// finished more than one interval ago. Failed syncs keep last_sync_at
// untouched, so they stay due and are retried on the next tick.
type IntegrationSyncJob struct {
	store          DueIntegrationLister
	syncer         IntegrationSyncer
	locker         SyncLocker
	logger         *observability.Logger
	interval       time.Duration
	maxConcurrency int
}

// NewIntegrationSyncJob creates the periodic sync job
func NewIntegrationSyncJob(
	store DueIntegrationLister,
	syncer IntegrationSyncer,
	locker SyncLocker,
	interval time.Duration,
	maxConcurrency int,
	logger *observability.Logger,
) *IntegrationSyncJob {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	return &IntegrationSyncJob{
		store:          store,
		syncer:         syncer,
		locker:         locker,
		logger:         logger,
		interval:       interval,
		maxConcurrency: maxConcurrency,
	}
}

// Name returns the job name
func (j *IntegrationSyncJob) Name() string {
	return "integration_sync"
}

// Schedule returns how often the job should run
func (j *IntegrationSyncJob) Schedule() time.Duration {
	return j.interval
}

// Run syncs all due integrations with bounded concurrency.
func (j *IntegrationSyncJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.interval)

	integrations, err := j.store.ListDueIntegrations(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list due integrations: %w", err)
	}

	if len(integrations) == 0 {
		return nil
	}

	j.logger.Info(ctx, fmt.Sprintf("Found %d integrations due for sync", len(integrations)))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    int
		skipped   int
	)
	sem := make(chan struct{}, j.maxConcurrency)

	for _, integration := range integrations {
		wg.Add(1)
		sem <- struct{}{}

		go func(integration store.Integration) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := j.syncOne(ctx, integration)

			mu.Lock()
			switch outcome {
			case outcomeSucceeded:
				succeeded++
			case outcomeFailed:
				failed++
			case outcomeSkipped:
				skipped++
			}
			mu.Unlock()
		}(integration)
	}

	wg.Wait()

	j.logger.Info(ctx, fmt.Sprintf("Integration sync run completed: %d succeeded, %d failed, %d skipped",
		succeeded, failed, skipped))
	return nil
}

type syncOutcome int

const (
	outcomeSucceeded syncOutcome = iota
	outcomeFailed
	outcomeSkipped
)

func (j *IntegrationSyncJob) syncOne(ctx context.Context, integration store.Integration) syncOutcome {
	syncCtx := observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: integration.ID},
		observability.Field{Key: "tenant_id", Value: integration.TenantID},
		observability.Field{Key: "platform", Value: integration.Provider},
	)

	release, acquired, err := j.locker.Acquire(syncCtx, integration.ID)
	if err != nil {
		j.logger.Error(syncCtx, "Failed to acquire sync lease", err)
		return outcomeFailed
	}
	if !acquired {
		// Another instance holds the lease. It will finish or the
		// lease will expire before the next tick.
		j.logger.Info(syncCtx, "Integration is being synced elsewhere, skipping")
		return outcomeSkipped
	}
	defer release()

	// Zero range: scheduled syncs always use the default trailing window.
	result, err := j.syncer.SyncIntegrationByID(syncCtx, integration.ID, platforms.DateRange{})
	if err != nil {
		j.logger.Error(syncCtx, "Scheduled sync failed to start", err)
		return outcomeFailed
	}
	if !result.Success {
		return outcomeFailed
	}
	return outcomeSucceeded
}
