package trust

import (
	"time"

	"github.com/google/uuid"
)

// Level buckets the composite score for display and gating.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
	LevelElite  Level = "ELITE"
)

// Score is the persisted trust record for one user. Recomputation
// overwrites it; no history is kept here.
type Score struct {
	UserID           uuid.UUID `json:"user_id"`
	TrustScore       int       `json:"trust_score"`
	Level            Level     `json:"level"`
	QualityScore     float64   `json:"quality_score"`
	ReliabilityScore float64   `json:"reliability_score"`
	SafetyScore      float64   `json:"safety_score"`
	PayoutScore      float64   `json:"payout_score"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// PerformanceStats aggregates completed-work quality over the lookback
// window.
type PerformanceStats struct {
	CompletionRate float64 // completed / accepted, 0..1
	AvgRating      float64 // 0..5
	RefundRate     float64 // refunded / completed, 0..1
	Sessions       int     // completed sessions
}

// RiskStats aggregates fraud exposure.
type RiskStats struct {
	RiskScore    float64 // platform risk model output, 0..100
	FraudSignals int     // abuse signals in the window
}

// BookingStats aggregates calendar behavior.
type BookingStats struct {
	CancelRate float64 // 0..1
	NoShowRate float64 // 0..1
}

// PayoutStats aggregates payout outcomes.
type PayoutStats struct {
	Attempts    int
	SuccessRate float64 // 0..1
	DisputeRate float64 // 0..1
}

// ModerationStats aggregates enforcement history.
type ModerationStats struct {
	Warnings int
	Bans     int
}

// Inputs is everything the calculator needs for one user.
type Inputs struct {
	Performance PerformanceStats
	Risk        RiskStats
	Booking     BookingStats
	Payout      PayoutStats
	Moderation  ModerationStats
}
