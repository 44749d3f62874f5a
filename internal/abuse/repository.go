package abuse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists abuse signals and reads usage counts from the
// platform tables.
type Repository struct {
	db *pgxpool.Pool
}

var (
	_ SignalRepository = (*Repository)(nil)
	_ UsageReader      = (*Repository)(nil)
)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertSignal(ctx context.Context, signal *Signal) (bool, error) {
	metadataJSON, err := json.Marshal(signal.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO abuse_signals (
			signal_key, user_id, signal_type, severity, auto_action,
			resolved, metadata, detected_at
		) VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
		ON CONFLICT (signal_key) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		signal.SignalKey,
		signal.UserID,
		signal.SignalType,
		signal.Severity,
		signal.AutoAction,
		metadataJSON,
		signal.DetectedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ListSignals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Signal, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM abuse_signals WHERE user_id = $1`
	if err := r.db.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT signal_key, user_id, signal_type, severity, auto_action,
		       resolved, metadata, detected_at
		FROM abuse_signals
		WHERE user_id = $1
		ORDER BY detected_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	signals := make([]*Signal, 0)
	for rows.Next() {
		var signal Signal
		var metadataJSON []byte
		err := rows.Scan(
			&signal.SignalKey,
			&signal.UserID,
			&signal.SignalType,
			&signal.Severity,
			&signal.AutoAction,
			&signal.Resolved,
			&metadataJSON,
			&signal.DetectedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(metadataJSON, &signal.Metadata); err != nil {
			signal.Metadata = nil
		}
		signals = append(signals, &signal)
	}
	return signals, total, rows.Err()
}

func (r *Repository) ResolveSignal(ctx context.Context, signalKey string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE abuse_signals SET resolved = TRUE WHERE signal_key = $1`, signalKey)
	return err
}

// Usage counts. Each is a single aggregate over one platform table.

func (r *Repository) RefundCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM refunds WHERE buyer_id = $1 AND created_at >= $2`,
		userID, since)
}

func (r *Repository) PanicEventCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM safety_events WHERE user_id = $1 AND event_type = 'panic' AND created_at >= $2`,
		userID, since)
}

func (r *Repository) MismatchReportCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM mismatch_reports WHERE reporter_id = $1 AND created_at >= $2`,
		userID, since)
}

func (r *Repository) ActionCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM activity_events WHERE user_id = $1 AND occurred_at >= $2`,
		userID, since)
}

func (r *Repository) FlaggedPromptCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM ai_interactions WHERE user_id = $1 AND flagged AND created_at >= $2`,
		userID, since)
}

func (r *Repository) CancellationCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM bookings WHERE cancelled_by = $1 AND status = 'cancelled' AND updated_at >= $2`,
		userID, since)
}

func (r *Repository) TokenSpendCount(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND kind = 'token_spend' AND created_at >= $2`,
		userID, since)
}

func (r *Repository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}
