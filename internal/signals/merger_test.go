package signals

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateCluster(accounts []uuid.UUID, sigType SignalType, confidence float64) *Cluster {
	return NewCluster(accounts, Signal{Type: sigType, Strength: confidence}, confidence)
}

func TestMergeEmptyAndSingleton(t *testing.T) {
	merger := NewMerger(MergeSinglePass)

	assert.Empty(t, merger.Merge(nil))

	only := candidateCluster(makeAccounts(3), SignalIPCorrelation, 0.5)
	merged := merger.Merge([]*Cluster{only})
	require.Len(t, merged, 1)
	assert.Same(t, only, merged[0])
}

func TestMergeDisjointClustersUntouched(t *testing.T) {
	merger := NewMerger(MergeSinglePass)
	c1 := candidateCluster(makeAccounts(3), SignalIPCorrelation, 0.5)
	c2 := candidateCluster(makeAccounts(2), SignalDeviceCorrelation, 0.6)

	merged := merger.Merge([]*Cluster{c1, c2})

	require.Len(t, merged, 2)
	assert.Same(t, c1, merged[0])
	assert.Same(t, c2, merged[1])
}

func TestMergeSharedAccountUnions(t *testing.T) {
	shared := uuid.New()
	others1 := makeAccounts(2)
	others2 := makeAccounts(2)
	c1 := candidateCluster(append([]uuid.UUID{shared}, others1...), SignalIPCorrelation, 0.5)
	c2 := candidateCluster(append([]uuid.UUID{shared}, others2...), SignalDeviceCorrelation, 0.9)

	merger := NewMerger(MergeSinglePass)
	merged := merger.Merge([]*Cluster{c1, c2})

	require.Len(t, merged, 1)
	result := merged[0]
	assert.Len(t, result.AccountIDs, 5)
	assert.Contains(t, result.AccountIDs, shared)
	assert.Len(t, result.Signals, 2)
	assert.InDelta(t, 0.7, result.Confidence, 1e-9)
	assert.Equal(t, StatusSuspected, result.Status)
}

func TestMergeHighConfidenceConfirms(t *testing.T) {
	shared := uuid.New()
	c1 := candidateCluster([]uuid.UUID{shared, uuid.New()}, SignalDeviceCorrelation, 0.95)
	c2 := candidateCluster([]uuid.UUID{shared, uuid.New()}, SignalSynchronized, 0.9)

	merger := NewMerger(MergeSinglePass)
	merged := merger.Merge([]*Cluster{c1, c2})

	require.Len(t, merged, 1)
	assert.InDelta(t, 0.925, merged[0].Confidence, 1e-9)
	assert.Equal(t, StatusConfirmed, merged[0].Status)
}

func TestMergeKeepsEarliestDetectionTime(t *testing.T) {
	shared := uuid.New()
	c1 := candidateCluster([]uuid.UUID{shared, uuid.New()}, SignalIPCorrelation, 0.5)
	c2 := candidateCluster([]uuid.UUID{shared, uuid.New()}, SignalDeviceCorrelation, 0.6)
	earlier := time.Now().UTC().Add(-48 * time.Hour)
	c2.DetectedAt = earlier

	merger := NewMerger(MergeSinglePass)
	merged := merger.Merge([]*Cluster{c1, c2})

	require.Len(t, merged, 1)
	assert.Equal(t, earlier, merged[0].DetectedAt)
}

func TestUnionFindCollapsesChains(t *testing.T) {
	// a-b, b-c, c-d: transitively one group even though the ends never
	// share an account directly.
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	c1 := candidateCluster([]uuid.UUID{a, b}, SignalDeviceCorrelation, 0.6)
	c2 := candidateCluster([]uuid.UUID{c, d}, SignalDeviceCorrelation, 0.6)
	c3 := candidateCluster([]uuid.UUID{b, c}, SignalSynchronized, 0.8)

	merger := NewMerger(MergeUnionFind)
	merged := merger.Merge([]*Cluster{c1, c2, c3})

	require.Len(t, merged, 1)
	assert.ElementsMatch(t, []uuid.UUID{a, b, c, d}, merged[0].AccountIDs)
	assert.Len(t, merged[0].Signals, 3)
	assert.InDelta(t, (0.6+0.6+0.8)/3, merged[0].Confidence, 1e-9)
}

func TestSinglePassIsOrderDependentOnChains(t *testing.T) {
	// With the bridging cluster last, single-pass visits a-b first, finds
	// no overlap with c-d, and only then merges the bridge into the first
	// group it matches.
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	c1 := candidateCluster([]uuid.UUID{a, b}, SignalDeviceCorrelation, 0.6)
	c2 := candidateCluster([]uuid.UUID{c, d}, SignalDeviceCorrelation, 0.6)
	c3 := candidateCluster([]uuid.UUID{b, c}, SignalSynchronized, 0.8)

	merger := NewMerger(MergeSinglePass)
	merged := merger.Merge([]*Cluster{c1, c2, c3})

	require.Len(t, merged, 2)
}

func TestMergedClusterKeyIsContentAddressed(t *testing.T) {
	shared := uuid.New()
	other1, other2 := uuid.New(), uuid.New()
	build := func() []*Cluster {
		return []*Cluster{
			candidateCluster([]uuid.UUID{shared, other1}, SignalIPCorrelation, 0.5),
			candidateCluster([]uuid.UUID{shared, other2}, SignalDeviceCorrelation, 0.6),
		}
	}

	merger := NewMerger(MergeSinglePass)
	first := merger.Merge(build())
	second := merger.Merge(build())

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ClusterKey, second[0].ClusterKey)
}

func TestUnknownStrategyFallsBackToSinglePass(t *testing.T) {
	merger := NewMerger("simulated-annealing")

	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	clusters := []*Cluster{
		candidateCluster([]uuid.UUID{a, b}, SignalDeviceCorrelation, 0.6),
		candidateCluster([]uuid.UUID{c, d}, SignalDeviceCorrelation, 0.6),
		candidateCluster([]uuid.UUID{b, c}, SignalSynchronized, 0.8),
	}
	assert.Len(t, merger.Merge(clusters), 2)
}

func TestMergeConfidenceStaysInRange(t *testing.T) {
	shared := uuid.New()
	var candidates []*Cluster
	for i := 0; i < 5; i++ {
		candidates = append(candidates, candidateCluster(
			[]uuid.UUID{shared, uuid.New()}, SignalSynchronized, 1.0))
	}

	merger := NewMerger(MergeUnionFind)
	merged := merger.Merge(candidates)

	require.Len(t, merged, 1)
	assert.LessOrEqual(t, merged[0].Confidence, 1.0)
	assert.GreaterOrEqual(t, merged[0].Confidence, 0.0)
}
