package trust

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository owns the trust_scores table.
type Repository struct {
	db *pgxpool.Pool
}

var _ ScoreRepository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) UpsertScore(ctx context.Context, score *Score) error {
	query := `
		INSERT INTO trust_scores (
			user_id, trust_score, level, quality_score, reliability_score,
			safety_score, payout_score, last_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			trust_score = EXCLUDED.trust_score,
			level = EXCLUDED.level,
			quality_score = EXCLUDED.quality_score,
			reliability_score = EXCLUDED.reliability_score,
			safety_score = EXCLUDED.safety_score,
			payout_score = EXCLUDED.payout_score,
			last_updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		score.UserID,
		score.TrustScore,
		score.Level,
		score.QualityScore,
		score.ReliabilityScore,
		score.SafetyScore,
		score.PayoutScore,
	)
	return err
}

func (r *Repository) GetScore(ctx context.Context, userID uuid.UUID) (*Score, error) {
	query := `
		SELECT user_id, trust_score, level, quality_score, reliability_score,
		       safety_score, payout_score, last_updated_at
		FROM trust_scores
		WHERE user_id = $1
	`
	var score Score
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&score.UserID,
		&score.TrustScore,
		&score.Level,
		&score.QualityScore,
		&score.ReliabilityScore,
		&score.SafetyScore,
		&score.PayoutScore,
		&score.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// PlatformReader aggregates the five upstream domains read-only.
// Every aggregate COALESCEs to neutral values so users without history
// score on defaults instead of erroring.
type PlatformReader struct {
	db *pgxpool.Pool
}

var (
	_ PerformanceReader = (*PlatformReader)(nil)
	_ RiskReader        = (*PlatformReader)(nil)
	_ BookingReader     = (*PlatformReader)(nil)
	_ PayoutReader      = (*PlatformReader)(nil)
	_ ModerationReader  = (*PlatformReader)(nil)
)

func NewPlatformReader(db *pgxpool.Pool) *PlatformReader {
	return &PlatformReader{db: db}
}

func (p *PlatformReader) PerformanceStats(ctx context.Context, userID uuid.UUID, since time.Time) (PerformanceStats, error) {
	query := `
		SELECT
			COALESCE(
				COUNT(*) FILTER (WHERE b.status = 'completed')::float /
				NULLIF(COUNT(*) FILTER (WHERE b.status IN ('completed', 'cancelled', 'no_show')), 0),
			0) AS completion_rate,
			COALESCE((SELECT AVG(rating) FROM reviews WHERE seller_id = $1 AND created_at >= $2), 0) AS avg_rating,
			COALESCE(
				(SELECT COUNT(*) FROM refunds WHERE seller_id = $1 AND created_at >= $2)::float /
				NULLIF(COUNT(*) FILTER (WHERE b.status = 'completed'), 0),
			0) AS refund_rate,
			COUNT(*) FILTER (WHERE b.status = 'completed') AS sessions
		FROM bookings b
		WHERE b.seller_id = $1 AND b.created_at >= $2
	`
	var stats PerformanceStats
	err := p.db.QueryRow(ctx, query, userID, since).Scan(
		&stats.CompletionRate, &stats.AvgRating, &stats.RefundRate, &stats.Sessions)
	return stats, err
}

func (p *PlatformReader) RiskStats(ctx context.Context, userID uuid.UUID, since time.Time) (RiskStats, error) {
	query := `
		SELECT
			COALESCE((SELECT risk_score FROM users WHERE id = $1), 0) AS risk_score,
			(SELECT COUNT(*) FROM abuse_signals WHERE user_id = $1 AND detected_at >= $2) AS fraud_signals
	`
	var stats RiskStats
	err := p.db.QueryRow(ctx, query, userID, since).Scan(&stats.RiskScore, &stats.FraudSignals)
	return stats, err
}

func (p *PlatformReader) BookingStats(ctx context.Context, userID uuid.UUID, since time.Time) (BookingStats, error) {
	query := `
		SELECT
			COALESCE(
				COUNT(*) FILTER (WHERE status = 'cancelled' AND cancelled_by = seller_id)::float /
				NULLIF(COUNT(*), 0),
			0) AS cancel_rate,
			COALESCE(
				COUNT(*) FILTER (WHERE status = 'no_show')::float /
				NULLIF(COUNT(*), 0),
			0) AS no_show_rate
		FROM bookings
		WHERE seller_id = $1 AND created_at >= $2
	`
	var stats BookingStats
	err := p.db.QueryRow(ctx, query, userID, since).Scan(&stats.CancelRate, &stats.NoShowRate)
	return stats, err
}

func (p *PlatformReader) PayoutStats(ctx context.Context, userID uuid.UUID, since time.Time) (PayoutStats, error) {
	query := `
		SELECT
			COUNT(*) AS attempts,
			COALESCE(COUNT(*) FILTER (WHERE status = 'succeeded')::float / NULLIF(COUNT(*), 0), 0) AS success_rate,
			COALESCE(COUNT(*) FILTER (WHERE disputed)::float / NULLIF(COUNT(*), 0), 0) AS dispute_rate
		FROM payouts
		WHERE user_id = $1 AND created_at >= $2
	`
	var stats PayoutStats
	err := p.db.QueryRow(ctx, query, userID, since).Scan(
		&stats.Attempts, &stats.SuccessRate, &stats.DisputeRate)
	return stats, err
}

func (p *PlatformReader) ModerationStats(ctx context.Context, userID uuid.UUID, since time.Time) (ModerationStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE action = 'warning') AS warnings,
			COUNT(*) FILTER (WHERE action = 'ban') AS bans
		FROM moderation_actions
		WHERE user_id = $1 AND created_at >= $2
	`
	var stats ModerationStats
	err := p.db.QueryRow(ctx, query, userID, since).Scan(&stats.Warnings, &stats.Bans)
	return stats, err
}
