package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Platform trigger subjects consumed by the engine.
const (
	SubjectRefundCreated        = "refunds.created"
	SubjectSafetyEvent          = "safety.triggered"
	SubjectTransactionCreated   = "transactions.created"
	SubjectAIInteractionLogged  = "ai.interaction.logged"
	SubjectBookingStatusChanged = "bookings.status_changed"
)

// Subjects emitted by the engine.
const (
	SubjectTrustRecompute = "trust.recompute"
	SubjectSignalDetected = "abuse.signal_detected"
	SubjectCaseOpened     = "farming.case_opened"
)

// RefundCreatedData is published when a buyer refund is recorded.
type RefundCreatedData struct {
	RefundID  uuid.UUID `json:"refund_id"`
	UserID    uuid.UUID `json:"user_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// SafetyEventData is published on panic-button and safety reports.
type SafetyEventData struct {
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	EventType string    `json:"event_type"`
	CreatedAt time.Time `json:"created_at"`
}

// TransactionCreatedData is published on every ledger transaction.
type TransactionCreatedData struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Kind          string    `json:"kind"` // purchase, token_spend, payout, ...
	Amount        float64   `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// AIInteractionData is published for each logged AI interaction.
type AIInteractionData struct {
	InteractionID uuid.UUID `json:"interaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Flagged       bool      `json:"flagged"` // content filter hit
	CreatedAt     time.Time `json:"created_at"`
}

// BookingStatusData is published on booking status transitions.
type BookingStatusData struct {
	BookingID  uuid.UUID `json:"booking_id"`
	UserID     uuid.UUID `json:"user_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ChangedAt  time.Time `json:"changed_at"`
}

// TrustRecomputeData asks the trust calculator to rescore a user.
type TrustRecomputeData struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

// SignalDetectedData announces a new abuse signal to downstream consumers.
type SignalDetectedData struct {
	SignalKey string    `json:"signal_key"`
	UserID    uuid.UUID `json:"user_id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
}

// CaseOpenedData announces a newly opened farming case.
type CaseOpenedData struct {
	CaseKey  string      `json:"case_key"`
	Severity string      `json:"severity"`
	UserIDs  []uuid.UUID `json:"user_ids"`
}
