package abuse

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SignalType names one abuse detection rule.
type SignalType string

const (
	SignalRefundLoop          SignalType = "refund_loop"
	SignalPanicSpam           SignalType = "panic_spam"
	SignalFakeMismatch        SignalType = "fake_mismatch"
	SignalBotVelocity         SignalType = "bot_velocity"
	SignalPromptAbuse         SignalType = "prompt_abuse"
	SignalCancellationFarming SignalType = "cancellation_farming"
	SignalTokenDrain          SignalType = "token_drain"
)

// AllSignalTypes lists every rule, for table totality checks and scans.
var AllSignalTypes = []SignalType{
	SignalRefundLoop,
	SignalPanicSpam,
	SignalFakeMismatch,
	SignalBotVelocity,
	SignalPromptAbuse,
	SignalCancellationFarming,
	SignalTokenDrain,
}

// Severity ranks a signal. Rules emit their configured base severity
// at the threshold and one tier higher at the escalation multiple.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AutoAction is the remediation the policy table selects.
type AutoAction string

const (
	ActionFreezeWallet AutoAction = "freeze_wallet"
	ActionShadowBan    AutoAction = "shadow_ban"
	ActionRateLimit    AutoAction = "rate_limit"
	ActionWarning      AutoAction = "warning"
	ActionManualReview AutoAction = "manual_review"
	ActionNone         AutoAction = "none"
)

// Signal is one detected abuse incident for one user in one window.
type Signal struct {
	SignalKey  string                 `json:"signal_key"`
	UserID     uuid.UUID              `json:"user_id"`
	SignalType SignalType             `json:"signal_type"`
	Severity   Severity               `json:"severity"`
	AutoAction AutoAction             `json:"auto_action"`
	Resolved   bool                   `json:"resolved"`
	Metadata   map[string]interface{} `json:"metadata"`
	DetectedAt time.Time              `json:"detected_at"`
}

// ComputeSignalKey derives a content-addressed identity so two
// concurrent evaluations of the same rule, user and window collapse
// into one signal.
func ComputeSignalKey(signalType SignalType, userID uuid.UUID, windowStart time.Time) string {
	payload := fmt.Sprintf("%s|%s|%s", signalType, userID, windowStart.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// walletImpacting marks rules whose abuse drains money directly.
var walletImpacting = map[SignalType]bool{
	SignalRefundLoop:   true,
	SignalFakeMismatch: true,
	SignalTokenDrain:   true,
}

// highAction picks the high-severity remediation per rule family:
// automated-traffic rules get rate limited, account-behavior rules get
// shadow banned.
var highAction = map[SignalType]AutoAction{
	SignalRefundLoop:          ActionShadowBan,
	SignalPanicSpam:           ActionRateLimit,
	SignalFakeMismatch:        ActionShadowBan,
	SignalBotVelocity:         ActionRateLimit,
	SignalPromptAbuse:         ActionRateLimit,
	SignalCancellationFarming: ActionShadowBan,
	SignalTokenDrain:          ActionRateLimit,
}

// ActionFor is the total (type, severity) -> autoAction policy table.
func ActionFor(signalType SignalType, severity Severity) AutoAction {
	switch severity {
	case SeverityCritical:
		if walletImpacting[signalType] {
			return ActionFreezeWallet
		}
		return ActionManualReview
	case SeverityHigh:
		if action, ok := highAction[signalType]; ok {
			return action
		}
		return ActionManualReview
	case SeverityMedium:
		return ActionWarning
	default:
		return ActionNone
	}
}
