package abuse

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// Every (type, severity) pair must resolve to a defined action.
func TestActionTableIsTotal(t *testing.T) {
	severities := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	known := map[AutoAction]bool{
		ActionFreezeWallet: true,
		ActionShadowBan:    true,
		ActionRateLimit:    true,
		ActionWarning:      true,
		ActionManualReview: true,
		ActionNone:         true,
	}

	for _, signalType := range AllSignalTypes {
		for _, severity := range severities {
			action := ActionFor(signalType, severity)
			assert.True(t, known[action],
				"undefined action %q for (%s, %s)", action, signalType, severity)
		}
	}
}

func TestCriticalWalletImpactingFreezes(t *testing.T) {
	assert.Equal(t, ActionFreezeWallet, ActionFor(SignalRefundLoop, SeverityCritical))
	assert.Equal(t, ActionFreezeWallet, ActionFor(SignalFakeMismatch, SeverityCritical))
	assert.Equal(t, ActionFreezeWallet, ActionFor(SignalTokenDrain, SeverityCritical))
}

func TestCriticalNonWalletGoesToReview(t *testing.T) {
	assert.Equal(t, ActionManualReview, ActionFor(SignalPanicSpam, SeverityCritical))
	assert.Equal(t, ActionManualReview, ActionFor(SignalBotVelocity, SeverityCritical))
	assert.Equal(t, ActionManualReview, ActionFor(SignalPromptAbuse, SeverityCritical))
	assert.Equal(t, ActionManualReview, ActionFor(SignalCancellationFarming, SeverityCritical))
}

func TestHighSeveritySplitsByRuleFamily(t *testing.T) {
	assert.Equal(t, ActionRateLimit, ActionFor(SignalBotVelocity, SeverityHigh))
	assert.Equal(t, ActionRateLimit, ActionFor(SignalPromptAbuse, SeverityHigh))
	assert.Equal(t, ActionRateLimit, ActionFor(SignalTokenDrain, SeverityHigh))
	assert.Equal(t, ActionShadowBan, ActionFor(SignalRefundLoop, SeverityHigh))
	assert.Equal(t, ActionShadowBan, ActionFor(SignalCancellationFarming, SeverityHigh))
}

func TestMediumWarnsAndLowDoesNothing(t *testing.T) {
	for _, signalType := range AllSignalTypes {
		assert.Equal(t, ActionWarning, ActionFor(signalType, SeverityMedium))
		assert.Equal(t, ActionNone, ActionFor(signalType, SeverityLow))
	}
}

func TestComputeSignalKey(t *testing.T) {
	userID := uuid.New()
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	key := ComputeSignalKey(SignalRefundLoop, userID, windowStart)

	assert.Len(t, key, 64)
	assert.Equal(t, key, ComputeSignalKey(SignalRefundLoop, userID, windowStart))
	assert.NotEqual(t, key, ComputeSignalKey(SignalTokenDrain, userID, windowStart))
	assert.NotEqual(t, key, ComputeSignalKey(SignalRefundLoop, uuid.New(), windowStart))
	assert.NotEqual(t, key, ComputeSignalKey(SignalRefundLoop, userID, windowStart.Add(time.Hour)))
}
