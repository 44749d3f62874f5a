package signals

import (
	"time"

	"github.com/google/uuid"
)

// MergeStrategyName selects how candidate clusters are grouped.
const (
	MergeSinglePass = "single-pass"
	MergeUnionFind  = "union-find"
)

const confirmThreshold = 0.85

// Merger unions candidate clusters that share accounts, aggregating
// confidence and evidence.
type Merger struct {
	strategy string
}

// NewMerger builds a merger. Unknown strategies fall back to
// single-pass.
func NewMerger(strategy string) *Merger {
	if strategy != MergeUnionFind {
		strategy = MergeSinglePass
	}
	return &Merger{strategy: strategy}
}

// Merge groups the candidate list into merged clusters. Input order is
// preserved for unmerged clusters.
func (m *Merger) Merge(candidates []*Cluster) []*Cluster {
	if len(candidates) <= 1 {
		return candidates
	}
	if m.strategy == MergeUnionFind {
		return m.mergeUnionFind(candidates)
	}
	return m.mergeSinglePass(candidates)
}

// mergeSinglePass groups each unprocessed cluster with every other
// unprocessed cluster sharing at least one account. This is one round
// of neighbor grouping, not a transitive closure: whether two clusters
// that only connect through a third end up together depends on order.
func (m *Merger) mergeSinglePass(candidates []*Cluster) []*Cluster {
	processed := make([]bool, len(candidates))
	result := make([]*Cluster, 0, len(candidates))

	for i, cluster := range candidates {
		if processed[i] {
			continue
		}
		processed[i] = true

		group := []*Cluster{cluster}
		accounts := accountSet(cluster.AccountIDs)
		for j := i + 1; j < len(candidates); j++ {
			if processed[j] {
				continue
			}
			if sharesAccount(accounts, candidates[j].AccountIDs) {
				processed[j] = true
				group = append(group, candidates[j])
				for _, id := range candidates[j].AccountIDs {
					accounts[id] = struct{}{}
				}
			}
		}

		if len(group) == 1 {
			result = append(result, cluster)
			continue
		}
		result = append(result, combine(group))
	}
	return result
}

// mergeUnionFind computes the full transitive closure over shared
// accounts, so chains of clusters collapse into one regardless of
// input order.
func (m *Merger) mergeUnionFind(candidates []*Cluster) []*Cluster {
	parent := make([]int, len(candidates))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	owner := make(map[uuid.UUID]int)
	for i, cluster := range candidates {
		for _, id := range cluster.AccountIDs {
			if prev, ok := owner[id]; ok {
				union(prev, i)
			} else {
				owner[id] = i
			}
		}
	}

	groups := make(map[int][]*Cluster)
	order := make([]int, 0, len(candidates))
	for i, cluster := range candidates {
		root := find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], cluster)
	}

	result := make([]*Cluster, 0, len(order))
	for _, root := range order {
		group := groups[root]
		if len(group) == 1 {
			result = append(result, group[0])
			continue
		}
		result = append(result, combine(group))
	}
	return result
}

// combine unions account sets, concatenates signals and averages
// confidence across the group.
func combine(group []*Cluster) *Cluster {
	accounts := make(map[uuid.UUID]struct{})
	var mergedSignals []Signal
	var confidenceSum float64
	earliest := group[0].DetectedAt

	for _, cluster := range group {
		for _, id := range cluster.AccountIDs {
			accounts[id] = struct{}{}
		}
		mergedSignals = append(mergedSignals, cluster.Signals...)
		confidenceSum += cluster.Confidence
		if cluster.DetectedAt.Before(earliest) {
			earliest = cluster.DetectedAt
		}
	}

	confidence := confidenceSum / float64(len(group))
	status := StatusSuspected
	if confidence > confirmThreshold {
		status = StatusConfirmed
	}

	ids := accountSetToSlice(accounts)
	return &Cluster{
		ClusterKey: ComputeClusterKey(ids, SignalMerged),
		AccountIDs: dedupeAccounts(ids),
		Signals:    mergedSignals,
		Confidence: clampUnit(confidence),
		Status:     status,
		DetectedAt: earliest,
		UpdatedAt:  time.Now().UTC(),
	}
}

func accountSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sharesAccount(set map[uuid.UUID]struct{}, ids []uuid.UUID) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
