package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftlink/sentinel/pkg/i18n"
)

// FlagRepository mutates enforcement state on accounts.
type FlagRepository interface {
	SetWalletFrozen(ctx context.Context, userID uuid.UUID, reason string) error
	SetShadowBanned(ctx context.Context, userID uuid.UUID) error
	SetRateLimited(ctx context.Context, userID uuid.UUID) error
	SetReviewRequired(ctx context.Context, userID uuid.UUID) error
	InsertNotice(ctx context.Context, userID uuid.UUID, notice string) error
	// RecordAction claims the signal for execution. Reports false when
	// the signal was already acted on.
	RecordAction(ctx context.Context, signalKey string, userID uuid.UUID, action, reason string) (bool, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ FlagRepository = (*Repository)(nil)

func (r *Repository) SetWalletFrozen(ctx context.Context, userID uuid.UUID, reason string) error {
	query := `
		INSERT INTO account_flags (user_id, wallet_frozen, freeze_reason, frozen_at, updated_at)
		VALUES ($1, TRUE, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			wallet_frozen = TRUE,
			freeze_reason = EXCLUDED.freeze_reason,
			frozen_at     = EXCLUDED.frozen_at,
			updated_at    = EXCLUDED.updated_at`

	if _, err := r.db.Exec(ctx, query, userID, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to freeze wallet: %w", err)
	}
	return nil
}

func (r *Repository) SetShadowBanned(ctx context.Context, userID uuid.UUID) error {
	return r.setFlag(ctx, userID, "shadow_banned")
}

func (r *Repository) SetRateLimited(ctx context.Context, userID uuid.UUID) error {
	return r.setFlag(ctx, userID, "rate_limited")
}

func (r *Repository) SetReviewRequired(ctx context.Context, userID uuid.UUID) error {
	return r.setFlag(ctx, userID, "review_required")
}

// setFlag flips a single boolean column. The column name is one of a
// fixed set above, never caller input.
func (r *Repository) setFlag(ctx context.Context, userID uuid.UUID, column string) error {
	query := fmt.Sprintf(`
		INSERT INTO account_flags (user_id, %s, updated_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			%s         = TRUE,
			updated_at = EXCLUDED.updated_at`, column, column)

	if _, err := r.db.Exec(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return nil
}

// InsertNotice stores the notice localized to the recipient's
// preferred language. noticeKey is an i18n translation key.
func (r *Repository) InsertNotice(ctx context.Context, userID uuid.UUID, noticeKey string) error {
	var lang string
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(preferred_language, '') FROM users WHERE id = $1`, userID).Scan(&lang)
	if err != nil {
		lang = i18n.DefaultLang
	}

	query := `
		INSERT INTO user_notices (id, user_id, notice, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.Exec(ctx, query, uuid.New(), userID, i18n.Translate(noticeKey, lang), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert notice: %w", err)
	}
	return nil
}

func (r *Repository) RecordAction(ctx context.Context, signalKey string, userID uuid.UUID, action, reason string) (bool, error) {
	query := `
		INSERT INTO action_records (signal_key, user_id, action, reason, executed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (signal_key) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, signalKey, userID, action, reason, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record action: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
