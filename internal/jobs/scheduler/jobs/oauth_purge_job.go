package jobs

import (
	"context"
	"fmt"
	"time"

	"sync-server/internal/observability"
)

// StatePurger removes expired OAuth state tokens.
type StatePurger interface {
	PurgeExpiredStates(ctx context.Context) (int64, error)
}

// OAuthStatePurgeJob clears expired OAuth state tokens. Consumed states
// are deleted inline during the callback; this job only catches flows
// that were started and never completed.
type OAuthStatePurgeJob struct {
	purger   StatePurger
	logger   *observability.Logger
	interval time.Duration
}

// NewOAuthStatePurgeJob creates the purge job
func NewOAuthStatePurgeJob(purger StatePurger, interval time.Duration, logger *observability.Logger) *OAuthStatePurgeJob {
	if interval == 0 {
		interval = 1 * time.Hour
	}

	return &OAuthStatePurgeJob{
		purger:   purger,
		logger:   logger,
		interval: interval,
	}
}

// Name returns the job name
func (j *OAuthStatePurgeJob) Name() string {
	return "oauth_state_purge"
}

// Schedule returns how often the job should run
func (j *OAuthStatePurgeJob) Schedule() time.Duration {
	return j.interval
}

// Run deletes all expired states.
func (j *OAuthStatePurgeJob) Run(ctx context.Context) error {
	purged, err := j.purger.PurgeExpiredStates(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge expired oauth states: %w", err)
	}

	if purged > 0 {
		j.logger.Info(ctx, fmt.Sprintf("Purged %d expired oauth states", purged))
	}
	return nil
}
