package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/craftlink/sentinel/internal/abuse"
	"github.com/craftlink/sentinel/internal/signals"
)

// AccountSource pages through the population a periodic job should
// cover. Implemented by the signals platform reader.
type AccountSource interface {
	ActiveAccountIDs(ctx context.Context, since time.Time, limit, offset int) ([]uuid.UUID, error)
}

// LockManager serializes a job across instances. Implemented by the
// Redis client.
type LockManager interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ExtendLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// ClusterScanner runs network detection over a batch of accounts.
type ClusterScanner interface {
	Scan(ctx context.Context, accountIDs []uuid.UUID) ([]*signals.Cluster, error)
}

// RuleScanner evaluates one abuse rule over a batch of accounts.
type RuleScanner interface {
	ScanRule(ctx context.Context, signalType abuse.SignalType, userIDs []uuid.UUID) (int, error)
}

// ScoreRecomputer refreshes trust scores for a batch of accounts.
type ScoreRecomputer interface {
	RecomputeBatch(ctx context.Context, userIDs []uuid.UUID) (int, error)
}
