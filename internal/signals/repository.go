package signals

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists engine-owned cluster records.
type Repository struct {
	db *pgxpool.Pool
}

var _ ClusterRepository = (*Repository)(nil)

// NewRepository creates a cluster repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertCluster writes a cluster keyed by its content hash. Repeated
// scans over the same account set update in place.
func (r *Repository) UpsertCluster(ctx context.Context, cluster *Cluster) error {
	signalsJSON, err := json.Marshal(cluster.Signals)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO clusters (
			cluster_key, account_ids, signals, confidence, status,
			investigation_id, detected_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (cluster_key) DO UPDATE SET
			account_ids = EXCLUDED.account_ids,
			signals = EXCLUDED.signals,
			confidence = EXCLUDED.confidence,
			status = EXCLUDED.status,
			investigation_id = COALESCE(EXCLUDED.investigation_id, clusters.investigation_id),
			updated_at = NOW()
	`

	_, err = r.db.Exec(ctx, query,
		cluster.ClusterKey,
		cluster.AccountIDs,
		signalsJSON,
		cluster.Confidence,
		cluster.Status,
		cluster.CaseKey,
		cluster.DetectedAt,
	)
	return err
}

// GetCluster retrieves one cluster by key.
func (r *Repository) GetCluster(ctx context.Context, clusterKey string) (*Cluster, error) {
	query := `
		SELECT cluster_key, account_ids, signals, confidence, status,
		       investigation_id, detected_at, updated_at
		FROM clusters
		WHERE cluster_key = $1
	`
	return scanCluster(r.db.QueryRow(ctx, query, clusterKey))
}

// ListClusters retrieves clusters ordered by confidence, optionally
// filtered by status, with a total count for pagination.
func (r *Repository) ListClusters(ctx context.Context, status ClusterStatus, limit, offset int) ([]*Cluster, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM clusters WHERE ($1 = '' OR status = $1)`
	if err := r.db.QueryRow(ctx, countQuery, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT cluster_key, account_ids, signals, confidence, status,
		       investigation_id, detected_at, updated_at
		FROM clusters
		WHERE ($1 = '' OR status = $1)
		ORDER BY confidence DESC, detected_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	clusters := make([]*Cluster, 0)
	for rows.Next() {
		cluster, err := scanCluster(rows)
		if err != nil {
			return nil, 0, err
		}
		clusters = append(clusters, cluster)
	}
	return clusters, total, rows.Err()
}

// MarkConfirmed promotes a cluster to confirmed and attaches the case
// it opened.
func (r *Repository) MarkConfirmed(ctx context.Context, clusterKey, caseKey string) error {
	query := `
		UPDATE clusters
		SET status = 'confirmed', investigation_id = $2, updated_at = NOW()
		WHERE cluster_key = $1
	`
	_, err := r.db.Exec(ctx, query, clusterKey, caseKey)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCluster(row rowScanner) (*Cluster, error) {
	var cluster Cluster
	var signalsJSON []byte
	var caseKey *string

	err := row.Scan(
		&cluster.ClusterKey,
		&cluster.AccountIDs,
		&signalsJSON,
		&cluster.Confidence,
		&cluster.Status,
		&caseKey,
		&cluster.DetectedAt,
		&cluster.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(signalsJSON, &cluster.Signals); err != nil {
		cluster.Signals = nil
	}
	cluster.CaseKey = caseKey
	return &cluster, nil
}

// PlatformReader reads platform-owned collections (sessions, messages,
// activity, referrals). The engine never writes through it.
type PlatformReader struct {
	db *pgxpool.Pool
}

var (
	_ SessionReader  = (*PlatformReader)(nil)
	_ MessageReader  = (*PlatformReader)(nil)
	_ ActivityReader = (*PlatformReader)(nil)
	_ ReferralReader = (*PlatformReader)(nil)
)

// NewPlatformReader creates a reader over the platform tables.
func NewPlatformReader(db *pgxpool.Pool) *PlatformReader {
	return &PlatformReader{db: db}
}

// RecentSessions returns session observations for the accounts since
// the cutoff.
func (p *PlatformReader) RecentSessions(ctx context.Context, accountIDs []uuid.UUID, since time.Time) ([]Session, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT user_id, ip_address, COALESCE(device_fingerprint, ''), created_at
		FROM sessions
		WHERE user_id = ANY($1) AND created_at >= $2
	`
	rows, err := p.db.Query(ctx, query, accountIDs, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.AccountID, &s.IPAddress, &s.DeviceFingerprint, &s.SeenAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecentMessages returns up to limitPerAccount recent messages per
// account.
func (p *PlatformReader) RecentMessages(ctx context.Context, accountIDs []uuid.UUID, since time.Time, limitPerAccount int) (map[uuid.UUID][]Message, error) {
	if len(accountIDs) == 0 {
		return map[uuid.UUID][]Message{}, nil
	}
	query := `
		SELECT sender_id, body, sent_at FROM (
			SELECT sender_id, body, sent_at,
			       ROW_NUMBER() OVER (PARTITION BY sender_id ORDER BY sent_at DESC) AS rn
			FROM messages
			WHERE sender_id = ANY($1) AND sent_at >= $2
		) ranked
		WHERE rn <= $3
	`
	rows, err := p.db.Query(ctx, query, accountIDs, since, limitPerAccount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]Message)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.AccountID, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		result[m.AccountID] = append(result[m.AccountID], m)
	}
	return result, rows.Err()
}

// ActivityTimestamps returns raw activity event times per account.
func (p *PlatformReader) ActivityTimestamps(ctx context.Context, accountIDs []uuid.UUID, since time.Time) (map[uuid.UUID][]time.Time, error) {
	if len(accountIDs) == 0 {
		return map[uuid.UUID][]time.Time{}, nil
	}
	query := `
		SELECT user_id, occurred_at
		FROM activity_events
		WHERE user_id = ANY($1) AND occurred_at >= $2
		ORDER BY occurred_at
	`
	rows, err := p.db.Query(ctx, query, accountIDs, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]time.Time)
	for rows.Next() {
		var userID uuid.UUID
		var ts time.Time
		if err := rows.Scan(&userID, &ts); err != nil {
			return nil, err
		}
		result[userID] = append(result[userID], ts)
	}
	return result, rows.Err()
}

// ReferrerMap returns the referred-by edge for each account that has
// one.
func (p *PlatformReader) ReferrerMap(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	if len(accountIDs) == 0 {
		return map[uuid.UUID]uuid.UUID{}, nil
	}
	query := `
		SELECT id, referred_by
		FROM users
		WHERE id = ANY($1) AND referred_by IS NOT NULL
	`
	rows, err := p.db.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]uuid.UUID)
	for rows.Next() {
		var id, referrer uuid.UUID
		if err := rows.Scan(&id, &referrer); err != nil {
			return nil, err
		}
		result[id] = referrer
	}
	return result, rows.Err()
}

// ActiveAccountIDs pages through accounts with activity since the
// cutoff, for population scans.
func (p *PlatformReader) ActiveAccountIDs(ctx context.Context, since time.Time, limit, offset int) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT user_id
		FROM activity_events
		WHERE occurred_at >= $1
		ORDER BY user_id
		LIMIT $2 OFFSET $3
	`
	rows, err := p.db.Query(ctx, query, since, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ErrClusterNotFound reports a missing cluster key.
var ErrClusterNotFound = errors.New("cluster not found")

// IsNotFound reports whether an error is a missing-row condition.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrClusterNotFound)
}
