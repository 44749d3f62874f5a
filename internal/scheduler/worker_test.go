package scheduler

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
	"github.com/craftlink/sentinel/internal/signals"
	"github.com/craftlink/sentinel/pkg/config"
)

// ============================================================================
// Mocks
// ============================================================================

type mockAccountSource struct {
	mock.Mock
}

func (m *mockAccountSource) ActiveAccountIDs(ctx context.Context, since time.Time, limit, offset int) ([]uuid.UUID, error) {
	args := m.Called(ctx, since, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type mockLockManager struct {
	mock.Mock
}

func (m *mockLockManager) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockLockManager) ExtendLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockLockManager) ReleaseLock(ctx context.Context, key, owner string) error {
	args := m.Called(ctx, key, owner)
	return args.Error(0)
}

type mockClusterScanner struct {
	mock.Mock
}

func (m *mockClusterScanner) Scan(ctx context.Context, accountIDs []uuid.UUID) ([]*signals.Cluster, error) {
	args := m.Called(ctx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*signals.Cluster), args.Error(1)
}

type mockRuleScanner struct {
	mock.Mock
}

func (m *mockRuleScanner) ScanRule(ctx context.Context, signalType abuse.SignalType, userIDs []uuid.UUID) (int, error) {
	args := m.Called(ctx, signalType, userIDs)
	return args.Int(0), args.Error(1)
}

type mockScoreRecomputer struct {
	mock.Mock
}

func (m *mockScoreRecomputer) RecomputeBatch(ctx context.Context, userIDs []uuid.UUID) (int, error) {
	args := m.Called(ctx, userIDs)
	return args.Int(0), args.Error(1)
}

// ============================================================================
// Helpers
// ============================================================================

func schedulerConfig() *config.DetectionConfig {
	return &config.DetectionConfig{
		LookbackDays:  30,
		ScanBatchSize: 2,
	}
}

type workerMocks struct {
	accounts   *mockAccountSource
	locks      *mockLockManager
	scanner    *mockClusterScanner
	referrals  *mockClusterScanner
	rules      *mockRuleScanner
	recomputer *mockScoreRecomputer
}

func newTestWorker() (*Worker, *workerMocks) {
	m := &workerMocks{
		accounts:   &mockAccountSource{},
		locks:      &mockLockManager{},
		scanner:    &mockClusterScanner{},
		referrals:  &mockClusterScanner{},
		rules:      &mockRuleScanner{},
		recomputer: &mockScoreRecomputer{},
	}
	w := NewWorker(m.accounts, m.locks, m.scanner, m.referrals, m.rules, m.recomputer, schedulerConfig(), zap.NewNop())
	return w, m
}

func accountBatch(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

// ============================================================================
// Batch walking
// ============================================================================

func TestClusterScanWalksAllPages(t *testing.T) {
	w, m := newTestWorker()

	page1 := accountBatch(2)
	page2 := accountBatch(1)

	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 0).Return(page1, nil)
	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 2).Return(page2, nil)
	m.scanner.On("Scan", mock.Anything, page1).Return([]*signals.Cluster(nil), nil)
	m.scanner.On("Scan", mock.Anything, page2).Return([]*signals.Cluster(nil), nil)

	err := w.runClusterScan(context.Background())
	assert.NoError(t, err)

	// The short final page ends the walk without another lookup.
	m.accounts.AssertNumberOfCalls(t, "ActiveAccountIDs", 2)
	m.scanner.AssertNumberOfCalls(t, "Scan", 2)
}

func TestClusterScanEmptyPopulation(t *testing.T) {
	w, m := newTestWorker()

	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 0).Return([]uuid.UUID{}, nil)

	err := w.runClusterScan(context.Background())
	assert.NoError(t, err)
	m.scanner.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
}

func TestBatchFailureContinuesAndReportsFirstError(t *testing.T) {
	w, m := newTestWorker()

	page1 := accountBatch(2)
	page2 := accountBatch(1)
	scanErr := errors.New("collector timeout")

	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 0).Return(page1, nil)
	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 2).Return(page2, nil)
	m.scanner.On("Scan", mock.Anything, page1).Return(nil, scanErr)
	m.scanner.On("Scan", mock.Anything, page2).Return([]*signals.Cluster(nil), nil)

	err := w.runClusterScan(context.Background())
	assert.ErrorIs(t, err, scanErr)

	// Both pages were still scanned.
	m.scanner.AssertNumberOfCalls(t, "Scan", 2)
}

func TestBatchWalkStopsOnAccountLookupError(t *testing.T) {
	w, m := newTestWorker()

	lookupErr := errors.New("db down")
	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 0).Return(nil, lookupErr)

	err := w.runClusterScan(context.Background())
	assert.ErrorIs(t, err, lookupErr)
	m.scanner.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
}

func TestBatchWalkStopsOnCancelledContext(t *testing.T) {
	w, m := newTestWorker()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.runClusterScan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	m.accounts.AssertNotCalled(t, "ActiveAccountIDs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// ============================================================================
// Individual jobs
// ============================================================================

func TestTrustRecomputeAggregatesScoredCount(t *testing.T) {
	w, m := newTestWorker()

	page := accountBatch(1)
	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 0).Return(page, nil)
	m.recomputer.On("RecomputeBatch", mock.Anything, page).Return(1, nil)

	err := w.runTrustRecompute(context.Background())
	assert.NoError(t, err)
	m.recomputer.AssertExpectations(t)
}

func TestBotVelocityScanUsesVelocityRule(t *testing.T) {
	w, m := newTestWorker()

	page := accountBatch(1)
	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 0).Return(page, nil)
	m.rules.On("ScanRule", mock.Anything, abuse.SignalBotVelocity, page).Return(1, nil)

	err := w.runBotVelocityScan(context.Background())
	assert.NoError(t, err)
	m.rules.AssertExpectations(t)
}

func TestCancellationFarmingScanUsesFarmingRule(t *testing.T) {
	w, m := newTestWorker()

	page := accountBatch(1)
	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 0).Return(page, nil)
	m.rules.On("ScanRule", mock.Anything, abuse.SignalCancellationFarming, page).Return(0, nil)

	err := w.runCancellationFarmingScan(context.Background())
	assert.NoError(t, err)
	m.rules.AssertExpectations(t)
}

func TestReferralAuditUsesDedicatedScanner(t *testing.T) {
	w, m := newTestWorker()

	page := accountBatch(1)
	m.accounts.On("ActiveAccountIDs", mock.Anything, mock.Anything, 2, 0).Return(page, nil)
	m.referrals.On("Scan", mock.Anything, page).Return([]*signals.Cluster(nil), nil)

	err := w.runReferralAudit(context.Background())
	assert.NoError(t, err)
	m.referrals.AssertExpectations(t)
	m.scanner.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
}

// ============================================================================
// Locking
// ============================================================================

func TestRunLockedSkipsWhenAnotherInstanceHoldsLock(t *testing.T) {
	w, m := newTestWorker()

	m.locks.On("AcquireLock", mock.Anything, "scheduler:lock:test_job", w.instanceID, time.Hour).
		Return(false, nil)

	ran := false
	w.runLocked(context.Background(), job{
		name:     "test_job",
		interval: time.Hour,
		run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})

	assert.False(t, ran)
	m.locks.AssertNotCalled(t, "ReleaseLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunLockedRunsAndReleases(t *testing.T) {
	w, m := newTestWorker()

	m.locks.On("AcquireLock", mock.Anything, "scheduler:lock:test_job", w.instanceID, time.Hour).
		Return(true, nil)
	m.locks.On("ReleaseLock", mock.Anything, "scheduler:lock:test_job", w.instanceID).
		Return(nil)

	ran := false
	w.runLocked(context.Background(), job{
		name:     "test_job",
		interval: time.Hour,
		run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})

	assert.True(t, ran)
	m.locks.AssertExpectations(t)
}

func TestRunLockedExtendsLockDuringLongRun(t *testing.T) {
	w, m := newTestWorker()

	m.locks.On("AcquireLock", mock.Anything, "scheduler:lock:slow_job", w.instanceID, 40*time.Millisecond).
		Return(true, nil)
	m.locks.On("ExtendLock", mock.Anything, "scheduler:lock:slow_job", w.instanceID, 40*time.Millisecond).
		Return(true, nil)
	m.locks.On("ReleaseLock", mock.Anything, "scheduler:lock:slow_job", w.instanceID).
		Return(nil)

	// The run outlasts several heartbeat ticks (interval/4 = 10ms).
	w.runLocked(context.Background(), job{
		name:     "slow_job",
		interval: 40 * time.Millisecond,
		run: func(ctx context.Context) error {
			time.Sleep(60 * time.Millisecond)
			return nil
		},
	})

	m.locks.AssertCalled(t, "ExtendLock",
		mock.Anything, "scheduler:lock:slow_job", w.instanceID, 40*time.Millisecond)
	m.locks.AssertCalled(t, "ReleaseLock",
		mock.Anything, "scheduler:lock:slow_job", w.instanceID)
}

func TestRunLockedReleasesAfterJobFailure(t *testing.T) {
	w, m := newTestWorker()

	m.locks.On("AcquireLock", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil)
	m.locks.On("ReleaseLock", mock.Anything, "scheduler:lock:failing_job", w.instanceID).
		Return(nil)

	w.runLocked(context.Background(), job{
		name:     "failing_job",
		interval: time.Hour,
		run: func(ctx context.Context) error {
			return errors.New("job blew up")
		},
	})

	m.locks.AssertExpectations(t)
}

func TestRunLockedSkipsOnLockError(t *testing.T) {
	w, m := newTestWorker()

	m.locks.On("AcquireLock", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, errors.New("redis down"))

	ran := false
	w.runLocked(context.Background(), job{
		name:     "test_job",
		interval: time.Hour,
		run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})

	assert.False(t, ran)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestStartAndStop(t *testing.T) {
	w, _ := newTestWorker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	// All intervals are hours, so no tick fires before Stop.
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestJobTableCoversAllScheduledWork(t *testing.T) {
	w, _ := newTestWorker()

	intervals := map[string]time.Duration{}
	for _, j := range w.jobs() {
		intervals[j.name] = j.interval
	}

	assert.Equal(t, 6*time.Hour, intervals["cluster_scan"])
	assert.Equal(t, 12*time.Hour, intervals["referral_audit"])
	assert.Equal(t, 24*time.Hour, intervals["trust_recompute"])
	assert.Equal(t, time.Hour, intervals["bot_velocity_scan"])
	assert.Equal(t, 6*time.Hour, intervals["cancellation_farming_scan"])
}
