package abuse

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UsageReader counts qualifying platform records per rule. Counts are
// aggregate queries; the detector holds no state between evaluations.
type UsageReader interface {
	RefundCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	PanicEventCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	MismatchReportCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	ActionCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	FlaggedPromptCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	CancellationCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	TokenSpendCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// SignalRepository owns the abuse_signals table.
type SignalRepository interface {
	// InsertSignal writes the signal if its key is new. Returns false
	// when the same signal was already recorded.
	InsertSignal(ctx context.Context, signal *Signal) (bool, error)
	ListSignals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Signal, int64, error)
	ResolveSignal(ctx context.Context, signalKey string) error
}

// Remediator applies the selected auto action. Implemented by the
// action executor.
type Remediator interface {
	Execute(ctx context.Context, signal *Signal) error
}

// Publisher emits engine events onto the platform bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
}
