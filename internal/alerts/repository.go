package alerts

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AlertRepository owns the alerts table.
type AlertRepository interface {
	InsertAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, unacknowledgedOnly bool, limit, offset int) ([]*Alert, int64, error)
	AcknowledgeAlert(ctx context.Context, alertID uuid.UUID) error
}

type Repository struct {
	db *pgxpool.Pool
}

var _ AlertRepository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertAlert(ctx context.Context, alert *Alert) error {
	metadataJSON, err := json.Marshal(alert.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alerts (
			id, alert_type, severity, message, channels, metric,
			current_value, threshold, metadata, acknowledged, resolved, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, FALSE, $10)
	`
	_, err = r.db.Exec(ctx, query,
		alert.ID,
		alert.AlertType,
		alert.Severity,
		alert.Message,
		alert.Channels,
		alert.Metric,
		alert.CurrentValue,
		alert.Threshold,
		metadataJSON,
		alert.CreatedAt,
	)
	return err
}

func (r *Repository) ListAlerts(ctx context.Context, unacknowledgedOnly bool, limit, offset int) ([]*Alert, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM alerts WHERE (NOT $1 OR NOT acknowledged)`
	if err := r.db.QueryRow(ctx, countQuery, unacknowledgedOnly).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, alert_type, severity, message, channels, metric,
		       current_value, threshold, metadata, acknowledged, resolved, created_at
		FROM alerts
		WHERE (NOT $1 OR NOT acknowledged)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, unacknowledgedOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := make([]*Alert, 0)
	for rows.Next() {
		var alert Alert
		var metadataJSON []byte
		err := rows.Scan(
			&alert.ID,
			&alert.AlertType,
			&alert.Severity,
			&alert.Message,
			&alert.Channels,
			&alert.Metric,
			&alert.CurrentValue,
			&alert.Threshold,
			&metadataJSON,
			&alert.Acknowledged,
			&alert.Resolved,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(metadataJSON, &alert.Metadata); err != nil {
			alert.Metadata = nil
		}
		list = append(list, &alert)
	}
	return list, total, rows.Err()
}

func (r *Repository) AcknowledgeAlert(ctx context.Context, alertID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE alerts SET acknowledged = TRUE WHERE id = $1`, alertID)
	return err
}
