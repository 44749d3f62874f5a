package signals

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is one login/session observation for an account.
type Session struct {
	AccountID         uuid.UUID
	IPAddress         string
	DeviceFingerprint string
	SeenAt            time.Time
}

// Message is a trimmed message sample used by the script and behavioral
// collectors.
type Message struct {
	AccountID uuid.UUID
	Body      string
	SentAt    time.Time
}

// SessionReader exposes session and device observations for a working
// set of accounts. Read-only; the engine never mutates platform data.
type SessionReader interface {
	RecentSessions(ctx context.Context, accountIDs []uuid.UUID, since time.Time) ([]Session, error)
}

// MessageReader exposes recent message samples per account.
type MessageReader interface {
	RecentMessages(ctx context.Context, accountIDs []uuid.UUID, since time.Time, limitPerAccount int) (map[uuid.UUID][]Message, error)
}

// ActivityReader exposes raw activity timestamps per account.
type ActivityReader interface {
	ActivityTimestamps(ctx context.Context, accountIDs []uuid.UUID, since time.Time) (map[uuid.UUID][]time.Time, error)
}

// ReferralReader exposes the account -> referrer edge set.
type ReferralReader interface {
	ReferrerMap(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
}

// ClusterRepository persists the engine-owned cluster records.
type ClusterRepository interface {
	UpsertCluster(ctx context.Context, cluster *Cluster) error
	GetCluster(ctx context.Context, clusterKey string) (*Cluster, error)
	ListClusters(ctx context.Context, status ClusterStatus, limit, offset int) ([]*Cluster, int64, error)
	MarkConfirmed(ctx context.Context, clusterKey, caseKey string) error
}
