package farming

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// CaseStatus tracks the investigation lifecycle of a farming case.
type CaseStatus string

const (
	StatusDetected      CaseStatus = "detected"
	StatusInvestigating CaseStatus = "investigating"
	StatusConfirmed     CaseStatus = "confirmed"
	StatusFalsePositive CaseStatus = "false_positive"
	StatusResolved      CaseStatus = "resolved"
	StatusAppealed      CaseStatus = "appealed"
)

// CaseSeverity ranks how damaging a confirmed case would be.
type CaseSeverity string

const (
	SeverityLow      CaseSeverity = "low"
	SeverityMedium   CaseSeverity = "medium"
	SeverityHigh     CaseSeverity = "high"
	SeverityCritical CaseSeverity = "critical"
)

// FarmingCase is an investigation record opened from a high-confidence
// cluster. The engine creates it once; investigators mutate it.
type FarmingCase struct {
	CaseKey         string                 `json:"case_key"`
	CaseType        string                 `json:"case_type"`
	Status          CaseStatus             `json:"status"`
	Severity        CaseSeverity           `json:"severity"`
	InvolvedUserIDs []uuid.UUID            `json:"involved_user_ids"`
	Evidence        map[string]interface{} `json:"evidence"`
	Resolution      *string                `json:"resolution,omitempty"`
	ResolvedBy      *uuid.UUID             `json:"resolved_by,omitempty"`
	DetectedAt      time.Time              `json:"detected_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ComputeCaseKey derives a case identity from the cluster that opened
// it, so repeated escalations of the same cluster reuse one case.
func ComputeCaseKey(clusterKey string) string {
	sum := sha256.Sum256([]byte("farming_case|" + clusterKey))
	return hex.EncodeToString(sum[:])
}

// SeverityFor maps cluster confidence onto a case severity tier.
func SeverityFor(confidence, criticalThreshold, caseThreshold float64) CaseSeverity {
	switch {
	case confidence > criticalThreshold:
		return SeverityCritical
	case confidence > caseThreshold:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
