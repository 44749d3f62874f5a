package farming

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the Postgres-backed case store.
type Repository struct {
	db *pgxpool.Pool
}

var _ CaseRepository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateCase(ctx context.Context, farmingCase *FarmingCase) (bool, error) {
	evidenceJSON, err := json.Marshal(farmingCase.Evidence)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO farming_cases (
			case_key, case_type, status, severity, involved_user_ids,
			evidence, detected_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (case_key) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		farmingCase.CaseKey,
		farmingCase.CaseType,
		farmingCase.Status,
		farmingCase.Severity,
		farmingCase.InvolvedUserIDs,
		evidenceJSON,
		farmingCase.DetectedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) GetCase(ctx context.Context, caseKey string) (*FarmingCase, error) {
	query := `
		SELECT case_key, case_type, status, severity, involved_user_ids,
		       evidence, resolution, resolved_by, detected_at, updated_at
		FROM farming_cases
		WHERE case_key = $1
	`
	row := r.db.QueryRow(ctx, query, caseKey)

	var farmingCase FarmingCase
	var evidenceJSON []byte
	err := row.Scan(
		&farmingCase.CaseKey,
		&farmingCase.CaseType,
		&farmingCase.Status,
		&farmingCase.Severity,
		&farmingCase.InvolvedUserIDs,
		&evidenceJSON,
		&farmingCase.Resolution,
		&farmingCase.ResolvedBy,
		&farmingCase.DetectedAt,
		&farmingCase.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(evidenceJSON, &farmingCase.Evidence); err != nil {
		farmingCase.Evidence = nil
	}
	return &farmingCase, nil
}

func (r *Repository) ListCases(ctx context.Context, status CaseStatus, limit, offset int) ([]*FarmingCase, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM farming_cases WHERE ($1 = '' OR status = $1)`
	if err := r.db.QueryRow(ctx, countQuery, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT case_key, case_type, status, severity, involved_user_ids,
		       evidence, resolution, resolved_by, detected_at, updated_at
		FROM farming_cases
		WHERE ($1 = '' OR status = $1)
		ORDER BY detected_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	cases := make([]*FarmingCase, 0)
	for rows.Next() {
		var farmingCase FarmingCase
		var evidenceJSON []byte
		err := rows.Scan(
			&farmingCase.CaseKey,
			&farmingCase.CaseType,
			&farmingCase.Status,
			&farmingCase.Severity,
			&farmingCase.InvolvedUserIDs,
			&evidenceJSON,
			&farmingCase.Resolution,
			&farmingCase.ResolvedBy,
			&farmingCase.DetectedAt,
			&farmingCase.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(evidenceJSON, &farmingCase.Evidence); err != nil {
			farmingCase.Evidence = nil
		}
		cases = append(cases, &farmingCase)
	}
	return cases, total, rows.Err()
}

func (r *Repository) UpdateCaseStatus(ctx context.Context, caseKey string, status CaseStatus, resolution *string, resolvedBy *uuid.UUID) error {
	query := `
		UPDATE farming_cases
		SET status = $2,
		    resolution = COALESCE($3, resolution),
		    resolved_by = COALESCE($4, resolved_by),
		    updated_at = NOW()
		WHERE case_key = $1
	`
	_, err := r.db.Exec(ctx, query, caseKey, status, resolution, resolvedBy)
	return err
}
