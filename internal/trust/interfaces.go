package trust

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// One reader per upstream domain. Each returns neutral zero values for
// users with no history, never an error for absence.

type PerformanceReader interface {
	PerformanceStats(ctx context.Context, userID uuid.UUID, since time.Time) (PerformanceStats, error)
}

type RiskReader interface {
	RiskStats(ctx context.Context, userID uuid.UUID, since time.Time) (RiskStats, error)
}

type BookingReader interface {
	BookingStats(ctx context.Context, userID uuid.UUID, since time.Time) (BookingStats, error)
}

type PayoutReader interface {
	PayoutStats(ctx context.Context, userID uuid.UUID, since time.Time) (PayoutStats, error)
}

type ModerationReader interface {
	ModerationStats(ctx context.Context, userID uuid.UUID, since time.Time) (ModerationStats, error)
}

// ScoreRepository owns the trust_scores table.
type ScoreRepository interface {
	UpsertScore(ctx context.Context, score *Score) error
	GetScore(ctx context.Context, userID uuid.UUID) (*Score, error)
}
