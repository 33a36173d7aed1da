package synclock

import (
	"context"
	"time"

	"sync-server/internal/clients/redis"
	"sync-server/internal/observability"

	"github.com/google/uuid"
)

// releaseScript deletes the lease only if this holder still owns it
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Locker hands out per-integration sync leases so two server instances never
// sync the same integration concurrently. Without Redis the lease is a no-op
// and single-instance deployments rely on the scheduler's own concurrency cap.
type Locker struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

func New(redisClient *redis.Client, ttl time.Duration, logger *observability.Logger) *Locker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Locker{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// Acquire tries to take the lease for one integration. It returns a release
// function and whether the lease was obtained. The lease expires on its own
// if the holder dies before releasing.
func (l *Locker) Acquire(ctx context.Context, integrationID uuid.UUID) (func(), bool, error) {
	if !l.redis.IsEnabled() {
		return func() {}, true, nil
	}

	key := "synclock:" + integrationID.String()
	token := uuid.NewString()

	acquired, err := l.redis.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		// Release runs on a fresh context so a cancelled sync still frees
		// the lease.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.redis.Eval(releaseCtx, releaseScript, []string{key}, token); err != nil {
			l.logger.Error(releaseCtx, "failed to release sync lease", err)
		}
	}
	return release, true, nil
}
