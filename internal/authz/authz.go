package authz

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminRole is the only role permitted to call on-demand engine endpoints.
const AdminRole = "admin"

// Decision is the result of a capability check.
type Decision struct {
	Allowed bool
	Role    string
}

// Authorizer answers whether a caller may use admin-gated operations.
type Authorizer interface {
	Authorize(ctx context.Context, userID uuid.UUID) (Decision, error)
}

// RoleReader looks up the stored role for a user.
type RoleReader interface {
	UserRole(ctx context.Context, userID uuid.UUID) (string, error)
}

// Service authorizes against roles persisted in the users table. The
// JWT role claim is advisory only; the stored role is what counts.
type Service struct {
	roles RoleReader
}

var _ Authorizer = (*Service)(nil)

func NewService(roles RoleReader) *Service {
	return &Service{roles: roles}
}

// Authorize resolves the caller's stored role. Unknown users are
// denied, not errored.
func (s *Service) Authorize(ctx context.Context, userID uuid.UUID) (Decision, error) {
	if userID == uuid.Nil {
		return Decision{}, nil
	}
	role, err := s.roles.UserRole(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Decision{}, nil
		}
		return Decision{}, err
	}
	return Decision{Allowed: role == AdminRole, Role: role}, nil
}

// Repository reads roles from the platform users table.
type Repository struct {
	db *pgxpool.Pool
}

var _ RoleReader = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) UserRole(ctx context.Context, userID uuid.UUID) (string, error) {
	var role string
	err := r.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		return "", err
	}
	return role, nil
}
