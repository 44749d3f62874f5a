package signals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/craftlink/sentinel/pkg/config"
)

type mockSessionReader struct {
	mock.Mock
}

func (m *mockSessionReader) RecentSessions(ctx context.Context, accountIDs []uuid.UUID, since time.Time) ([]Session, error) {
	args := m.Called(ctx, accountIDs, since)
	sessions, _ := args.Get(0).([]Session)
	return sessions, args.Error(1)
}

type mockMessageReader struct {
	mock.Mock
}

func (m *mockMessageReader) RecentMessages(ctx context.Context, accountIDs []uuid.UUID, since time.Time, limitPerAccount int) (map[uuid.UUID][]Message, error) {
	args := m.Called(ctx, accountIDs, since, limitPerAccount)
	messages, _ := args.Get(0).(map[uuid.UUID][]Message)
	return messages, args.Error(1)
}

type mockActivityReader struct {
	mock.Mock
}

func (m *mockActivityReader) ActivityTimestamps(ctx context.Context, accountIDs []uuid.UUID, since time.Time) (map[uuid.UUID][]time.Time, error) {
	args := m.Called(ctx, accountIDs, since)
	timestamps, _ := args.Get(0).(map[uuid.UUID][]time.Time)
	return timestamps, args.Error(1)
}

type mockReferralReader struct {
	mock.Mock
}

func (m *mockReferralReader) ReferrerMap(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	args := m.Called(ctx, accountIDs)
	referrers, _ := args.Get(0).(map[uuid.UUID]uuid.UUID)
	return referrers, args.Error(1)
}

func testDetectionConfig() *config.DetectionConfig {
	return &config.DetectionConfig{
		Version:             "test",
		MergeStrategy:       MergeSinglePass,
		PersistThreshold:    0.7,
		CaseThreshold:       0.85,
		CriticalThreshold:   0.95,
		LookbackDays:        30,
		ScanBatchSize:       500,
		SimilarityThreshold: 0.7,
		SyncThreshold:       0.6,
		SyncWindow:          5 * time.Minute,
	}
}

func makeAccounts(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func sessionsOnIP(ip string, accounts []uuid.UUID) []Session {
	sessions := make([]Session, 0, len(accounts))
	for _, id := range accounts {
		sessions = append(sessions, Session{
			AccountID: id,
			IPAddress: ip,
			SeenAt:    time.Now(),
		})
	}
	return sessions
}

func TestIPCollectorConfidenceScaling(t *testing.T) {
	tests := []struct {
		name           string
		accounts       int
		wantClusters   int
		wantConfidence float64
	}{
		{"below minimum", 2, 0, 0},
		{"minimum three accounts", 3, 1, 0.5},
		{"five accounts", 5, 1, 0.7},
		{"large cluster capped", 12, 1, 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			accounts := makeAccounts(tt.accounts)
			reader := new(mockSessionReader)
			reader.On("RecentSessions", ctx, accounts, mock.AnythingOfType("time.Time")).
				Return(sessionsOnIP("203.0.113.7", accounts), nil)

			collector := NewIPCollector(reader, testDetectionConfig())
			clusters, err := collector.Collect(ctx, accounts)

			require.NoError(t, err)
			require.Len(t, clusters, tt.wantClusters)
			if tt.wantClusters > 0 {
				assert.InDelta(t, tt.wantConfidence, clusters[0].Confidence, 1e-9)
				assert.Len(t, clusters[0].AccountIDs, tt.accounts)
				assert.Equal(t, SignalIPCorrelation, clusters[0].Signals[0].Type)
			}
			reader.AssertExpectations(t)
		})
	}
}

func TestIPCollectorIgnoresEmptyAddresses(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(4)
	sessions := sessionsOnIP("", accounts)
	reader := new(mockSessionReader)
	reader.On("RecentSessions", ctx, accounts, mock.AnythingOfType("time.Time")).
		Return(sessions, nil)

	collector := NewIPCollector(reader, testDetectionConfig())
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestDeviceCollectorConfidenceScaling(t *testing.T) {
	tests := []struct {
		name           string
		accounts       int
		wantClusters   int
		wantConfidence float64
	}{
		{"single account", 1, 0, 0},
		{"two accounts", 2, 1, 0.6},
		{"four accounts", 4, 1, 0.9},
		{"large cluster capped", 10, 1, 0.98},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			accounts := makeAccounts(tt.accounts)
			sessions := make([]Session, 0, len(accounts))
			for _, id := range accounts {
				sessions = append(sessions, Session{
					AccountID:         id,
					IPAddress:         "198.51.100.1",
					DeviceFingerprint: "fp-abc123",
					SeenAt:            time.Now(),
				})
			}
			reader := new(mockSessionReader)
			reader.On("RecentSessions", ctx, accounts, mock.AnythingOfType("time.Time")).
				Return(sessions, nil)

			collector := NewDeviceCollector(reader, testDetectionConfig())
			clusters, err := collector.Collect(ctx, accounts)

			require.NoError(t, err)
			require.Len(t, clusters, tt.wantClusters)
			if tt.wantClusters > 0 {
				assert.InDelta(t, tt.wantConfidence, clusters[0].Confidence, 1e-9)
				assert.Equal(t, SignalDeviceCorrelation, clusters[0].Signals[0].Type)
			}
		})
	}
}

func TestBehavioralCollectorPairsSimilarAccounts(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(3)
	a, b, c := accounts[0], accounts[1], accounts[2]

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	// a and b share active hours and vocabulary, c overlaps with neither.
	timestamps := map[uuid.UUID][]time.Time{
		a: {base, base.Add(time.Hour), base.Add(2 * time.Hour)},
		b: {base.Add(10 * time.Minute), base.Add(70 * time.Minute), base.Add(130 * time.Minute)},
		c: {base.Add(14 * time.Hour)},
	}
	messages := map[uuid.UUID][]Message{
		a: {{AccountID: a, Body: "great quality fast shipping thanks"}},
		b: {{AccountID: b, Body: "great quality fast shipping thanks"}},
		c: {{AccountID: c, Body: "completely unrelated words here"}},
	}

	activity := new(mockActivityReader)
	activity.On("ActivityTimestamps", ctx, accounts, mock.AnythingOfType("time.Time")).
		Return(timestamps, nil)
	msgReader := new(mockMessageReader)
	msgReader.On("RecentMessages", ctx, accounts, mock.AnythingOfType("time.Time"), messageSampleLimit).
		Return(messages, nil)

	collector := NewBehavioralCollector(activity, msgReader, testDetectionConfig())
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, clusters[0].AccountIDs)
	assert.Greater(t, clusters[0].Confidence, 0.7)
	assert.LessOrEqual(t, clusters[0].Confidence, 1.0)
}

func TestBehavioralCollectorEmptyDataYieldsNothing(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(2)

	activity := new(mockActivityReader)
	activity.On("ActivityTimestamps", ctx, accounts, mock.AnythingOfType("time.Time")).
		Return(map[uuid.UUID][]time.Time{}, nil)
	msgReader := new(mockMessageReader)
	msgReader.On("RecentMessages", ctx, accounts, mock.AnythingOfType("time.Time"), messageSampleLimit).
		Return(map[uuid.UUID][]Message{}, nil)

	collector := NewBehavioralCollector(activity, msgReader, testDetectionConfig())
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestScriptCollectorDetectsSharedTemplates(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(2)
	a, b := accounts[0], accounts[1]

	script1 := "Hi! Check out my amazing new listing today"
	script2 := "Limited offer, message me before it expires"
	script3 := "Five star service guaranteed, book with confidence"
	messages := map[uuid.UUID][]Message{
		a: {{Body: script1}, {Body: script2}, {Body: script3}, {Body: "short"}},
		b: {{Body: script1}, {Body: script2}, {Body: script3}},
	}

	msgReader := new(mockMessageReader)
	msgReader.On("RecentMessages", ctx, accounts, mock.AnythingOfType("time.Time"), messageSampleLimit).
		Return(messages, nil)

	collector := NewScriptCollector(msgReader, testDetectionConfig())
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 0.9, clusters[0].Confidence, 1e-9)
	assert.Equal(t, 3, clusters[0].Signals[0].Evidence["identical_messages"])
}

func TestScriptCollectorIgnoresShortAndUnsharedMessages(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(2)
	a, b := accounts[0], accounts[1]

	messages := map[uuid.UUID][]Message{
		a: {{Body: "hello there"}, {Body: "hello there"}, {Body: "hello there"}},
		b: {{Body: "hello there"}, {Body: "a different long message entirely"}},
	}

	msgReader := new(mockMessageReader)
	msgReader.On("RecentMessages", ctx, accounts, mock.AnythingOfType("time.Time"), messageSampleLimit).
		Return(messages, nil)

	collector := NewScriptCollector(msgReader, testDetectionConfig())
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestReferralCollectorFindsCycle(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(4)
	a, b, c, d := accounts[0], accounts[1], accounts[2], accounts[3]

	// a -> b -> c -> a is a loop; d refers into the loop but is not part
	// of it.
	referrers := map[uuid.UUID]uuid.UUID{
		a: b,
		b: c,
		c: a,
		d: a,
	}

	reader := new(mockReferralReader)
	reader.On("ReferrerMap", ctx, accounts).Return(referrers, nil)

	collector := NewReferralCollector(reader)
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []uuid.UUID{a, b, c}, clusters[0].AccountIDs)
	assert.InDelta(t, 0.85, clusters[0].Confidence, 1e-9)
	assert.Equal(t, 3, clusters[0].Signals[0].Evidence["cycle_length"])
}

func TestReferralCollectorNoCycleNoCluster(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(3)
	a, b, c := accounts[0], accounts[1], accounts[2]

	referrers := map[uuid.UUID]uuid.UUID{
		a: b,
		b: c,
	}

	reader := new(mockReferralReader)
	reader.On("ReferrerMap", ctx, accounts).Return(referrers, nil)

	collector := NewReferralCollector(reader)
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestSyncCollectorDetectsLockstepActivity(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(2)
	a, b := accounts[0], accounts[1]

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timestamps := map[uuid.UUID][]time.Time{
		a: {base, base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour)},
		b: {base.Add(time.Minute), base.Add(time.Hour + 2*time.Minute), base.Add(2*time.Hour + 3*time.Minute), base.Add(3*time.Hour + 4*time.Minute)},
	}

	reader := new(mockActivityReader)
	reader.On("ActivityTimestamps", ctx, accounts, mock.AnythingOfType("time.Time")).
		Return(timestamps, nil)

	collector := NewSyncCollector(reader, testDetectionConfig())
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 1.0, clusters[0].Confidence, 1e-9)
	assert.Equal(t, 4, clusters[0].Signals[0].Evidence["matched_events"])
}

func TestSyncCollectorIndependentTimelines(t *testing.T) {
	ctx := context.Background()
	accounts := makeAccounts(2)
	a, b := accounts[0], accounts[1]

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	timestamps := map[uuid.UUID][]time.Time{
		a: {base, base.Add(4 * time.Hour), base.Add(8 * time.Hour)},
		b: {base.Add(time.Hour), base.Add(6 * time.Hour), base.Add(11 * time.Hour)},
	}

	reader := new(mockActivityReader)
	reader.On("ActivityTimestamps", ctx, accounts, mock.AnythingOfType("time.Time")).
		Return(timestamps, nil)

	collector := NewSyncCollector(reader, testDetectionConfig())
	clusters, err := collector.Collect(ctx, accounts)

	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestCountSynchronizedMatchesEachEventOnce(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Three events on one side inside a single window still consume only
	// one event on the other.
	t1 := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}
	t2 := []time.Time{base.Add(30 * time.Second)}

	assert.Equal(t, 1, countSynchronized(t1, t2, 5*time.Minute))
	assert.Equal(t, 1, countSynchronized(t2, t1, 5*time.Minute))
}

func TestClusterKeyIsOrderIndependent(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	key1 := ComputeClusterKey([]uuid.UUID{a, b, c}, SignalIPCorrelation)
	key2 := ComputeClusterKey([]uuid.UUID{c, a, b}, SignalIPCorrelation)
	key3 := ComputeClusterKey([]uuid.UUID{a, b, c}, SignalDeviceCorrelation)

	assert.Equal(t, key1, key2)
	assert.NotEqual(t, key1, key3)
	assert.Len(t, key1, 64)
}

func TestNewClusterClampsConfidence(t *testing.T) {
	accounts := makeAccounts(2)
	sig := Signal{Type: SignalSynchronized, Strength: 1.3}

	cluster := NewCluster(accounts, sig, 1.3)
	assert.Equal(t, 1.0, cluster.Confidence)

	cluster = NewCluster(accounts, sig, -0.2)
	assert.Equal(t, 0.0, cluster.Confidence)
}
