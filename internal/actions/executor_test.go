package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/internal/abuse"
	"github.com/craftlink/sentinel/internal/alerts"
)

type mockFlagRepository struct {
	mock.Mock
}

func (m *mockFlagRepository) SetWalletFrozen(ctx context.Context, userID uuid.UUID, reason string) error {
	args := m.Called(ctx, userID, reason)
	return args.Error(0)
}

func (m *mockFlagRepository) SetShadowBanned(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockFlagRepository) SetRateLimited(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockFlagRepository) SetReviewRequired(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockFlagRepository) InsertNotice(ctx context.Context, userID uuid.UUID, notice string) error {
	args := m.Called(ctx, userID, notice)
	return args.Error(0)
}

func (m *mockFlagRepository) RecordAction(ctx context.Context, signalKey string, userID uuid.UUID, action, reason string) (bool, error) {
	args := m.Called(ctx, signalKey, userID, action, reason)
	return args.Bool(0), args.Error(1)
}

type mockAlertRouter struct {
	mock.Mock
}

func (m *mockAlertRouter) Route(ctx context.Context, alert *alerts.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func testSignal(signalType abuse.SignalType, severity abuse.Severity) *abuse.Signal {
	userID := uuid.New()
	return &abuse.Signal{
		SignalKey:  abuse.ComputeSignalKey(signalType, userID, time.Now().UTC().Truncate(time.Hour)),
		UserID:     userID,
		SignalType: signalType,
		Severity:   severity,
		AutoAction: abuse.ActionFor(signalType, severity),
		DetectedAt: time.Now().UTC(),
	}
}

func TestExecuteFreezesWalletForCriticalRefundLoop(t *testing.T) {
	repo := &mockFlagRepository{}
	router := &mockAlertRouter{}
	signal := testSignal(abuse.SignalRefundLoop, abuse.SeverityCritical)

	repo.On("RecordAction", mock.Anything, signal.SignalKey, signal.UserID, "freeze_wallet", mock.Anything).
		Return(true, nil)
	repo.On("SetWalletFrozen", mock.Anything, signal.UserID, mock.MatchedBy(func(reason string) bool {
		return reason != ""
	})).Return(nil)
	router.On("Route", mock.Anything, mock.MatchedBy(func(a *alerts.Alert) bool {
		return a.AlertType == "abuse_action" && a.Severity == "critical" &&
			a.Metadata["signal_key"] == signal.SignalKey
	})).Return(nil)

	executor := NewExecutor(repo, router, zap.NewNop())

	err := executor.Execute(context.Background(), signal)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
	router.AssertExpectations(t)
}

func TestExecuteShadowBansHighCancellationFarming(t *testing.T) {
	repo := &mockFlagRepository{}
	router := &mockAlertRouter{}
	signal := testSignal(abuse.SignalCancellationFarming, abuse.SeverityHigh)

	repo.On("RecordAction", mock.Anything, signal.SignalKey, signal.UserID, "shadow_ban", mock.Anything).
		Return(true, nil)
	repo.On("SetShadowBanned", mock.Anything, signal.UserID).Return(nil)
	router.On("Route", mock.Anything, mock.Anything).Return(nil)

	executor := NewExecutor(repo, router, zap.NewNop())

	err := executor.Execute(context.Background(), signal)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestExecuteWarningInsertsNotice(t *testing.T) {
	repo := &mockFlagRepository{}
	signal := testSignal(abuse.SignalBotVelocity, abuse.SeverityMedium)

	repo.On("RecordAction", mock.Anything, signal.SignalKey, signal.UserID, "warning", mock.Anything).
		Return(true, nil)
	repo.On("InsertNotice", mock.Anything, signal.UserID, mock.MatchedBy(func(notice string) bool {
		return notice != ""
	})).Return(nil)

	executor := NewExecutor(repo, nil, zap.NewNop())

	err := executor.Execute(context.Background(), signal)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestExecuteNoneIsNoOp(t *testing.T) {
	repo := &mockFlagRepository{}
	signal := testSignal(abuse.SignalBotVelocity, abuse.SeverityLow)

	executor := NewExecutor(repo, nil, zap.NewNop())

	err := executor.Execute(context.Background(), signal)
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "RecordAction", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteAlreadyClaimedSkipsEnforcement(t *testing.T) {
	repo := &mockFlagRepository{}
	router := &mockAlertRouter{}
	signal := testSignal(abuse.SignalRefundLoop, abuse.SeverityCritical)

	repo.On("RecordAction", mock.Anything, signal.SignalKey, signal.UserID, "freeze_wallet", mock.Anything).
		Return(false, nil)

	executor := NewExecutor(repo, router, zap.NewNop())

	err := executor.Execute(context.Background(), signal)
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "SetWalletFrozen", mock.Anything, mock.Anything, mock.Anything)
	router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything)
}

func TestExecuteEnforcementFailurePropagates(t *testing.T) {
	repo := &mockFlagRepository{}
	router := &mockAlertRouter{}
	signal := testSignal(abuse.SignalTokenDrain, abuse.SeverityCritical)

	repo.On("RecordAction", mock.Anything, signal.SignalKey, signal.UserID, "freeze_wallet", mock.Anything).
		Return(true, nil)
	repo.On("SetWalletFrozen", mock.Anything, signal.UserID, mock.Anything).
		Return(errors.New("db down"))

	executor := NewExecutor(repo, router, zap.NewNop())

	err := executor.Execute(context.Background(), signal)
	assert.Error(t, err)
	router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything)
}

func TestExecuteAlertFailureDoesNotFailAction(t *testing.T) {
	repo := &mockFlagRepository{}
	router := &mockAlertRouter{}
	signal := testSignal(abuse.SignalPromptAbuse, abuse.SeverityHigh)

	repo.On("RecordAction", mock.Anything, signal.SignalKey, signal.UserID, "rate_limit", mock.Anything).
		Return(true, nil)
	repo.On("SetRateLimited", mock.Anything, signal.UserID).Return(nil)
	router.On("Route", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	executor := NewExecutor(repo, router, zap.NewNop())

	err := executor.Execute(context.Background(), signal)
	assert.NoError(t, err)
}
