package selftest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stepflow-dev/harness/internal/harnesserr"
)

// OverrideLock serializes concurrent selftest invocations against the same
// run so two processes applying overrides don't race on the audit trail
// (spec §4.7 override handling), grounded on the teacher's
// `features/stream/pulse` use of *redis.Client as the shared coordination
// backend. It is optional: selftest runs single-process by default and only
// needs this when multiple `flow selftest` invocations can target the same
// run concurrently.
type OverrideLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOverrideLock constructs a lock backed by client, held for ttl per
// acquisition.
func NewOverrideLock(client *redis.Client, ttl time.Duration) *OverrideLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &OverrideLock{client: client, ttl: ttl}
}

func (l *OverrideLock) key(runID string) string {
	return "harness:selftest:override-lock:" + runID
}

// Acquire attempts to take the lock for runID, returning a release function.
// Returns a GovernanceFailure-kind error if another process already holds
// it.
func (l *OverrideLock) Acquire(ctx context.Context, runID, holder string) (release func(context.Context) error, err error) {
	ok, err := l.client.SetNX(ctx, l.key(runID), holder, l.ttl).Result()
	if err != nil {
		return nil, harnesserr.Wrap(harnesserr.KindGovernanceFailure, "selftest.lock", "acquire override lock", err)
	}
	if !ok {
		return nil, harnesserr.New(harnesserr.KindGovernanceFailure, "selftest.lock", "override lock already held for run "+runID)
	}
	return func(releaseCtx context.Context) error {
		return l.client.Del(releaseCtx, l.key(runID)).Err()
	}, nil
}
