package farming

import (
	"context"

	"github.com/google/uuid"
)

// CaseRepository persists farming cases keyed by their derived case key.
type CaseRepository interface {
	// CreateCase inserts the case if its key is new. Returns false when
	// an identical case already exists.
	CreateCase(ctx context.Context, farmingCase *FarmingCase) (bool, error)
	GetCase(ctx context.Context, caseKey string) (*FarmingCase, error)
	ListCases(ctx context.Context, status CaseStatus, limit, offset int) ([]*FarmingCase, int64, error)
	UpdateCaseStatus(ctx context.Context, caseKey string, status CaseStatus, resolution *string, resolvedBy *uuid.UUID) error
}

// Publisher emits engine events onto the platform bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
}
