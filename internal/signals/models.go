package signals

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignalType identifies which heuristic produced a signal.
type SignalType string

const (
	SignalIPCorrelation     SignalType = "ip_correlation"
	SignalDeviceCorrelation SignalType = "device_correlation"
	SignalBehavioral        SignalType = "behavioral_similarity"
	SignalMessageScript     SignalType = "message_script"
	SignalReferralLoop      SignalType = "referral_loop"
	SignalSynchronized      SignalType = "synchronized_activity"
	SignalMerged            SignalType = "merged"
)

// ClusterStatus tracks the investigation state of a cluster.
type ClusterStatus string

const (
	StatusSuspected ClusterStatus = "suspected"
	StatusConfirmed ClusterStatus = "confirmed"
	StatusDismissed ClusterStatus = "dismissed"
)

// Signal is one piece of evidence emitted by a collector. Immutable
// once emitted.
type Signal struct {
	Type        SignalType             `json:"type"`
	Strength    float64                `json:"strength"`
	Evidence    map[string]interface{} `json:"evidence,omitempty"`
	Description string                 `json:"description"`
}

// Cluster is a candidate set of accounts suspected of coordinated
// behavior.
type Cluster struct {
	ClusterKey string        `json:"cluster_key"`
	AccountIDs []uuid.UUID   `json:"account_ids"`
	Signals    []Signal      `json:"signals"`
	Confidence float64       `json:"confidence"`
	Status     ClusterStatus `json:"status"`
	CaseKey    *string       `json:"case_key,omitempty"`
	DetectedAt time.Time     `json:"detected_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ComputeClusterKey derives a deterministic identity from the sorted
// account set and the source signal type, so repeated scans over the
// same accounts upsert rather than duplicate.
func ComputeClusterKey(accountIDs []uuid.UUID, signalType SignalType) string {
	ids := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(strings.Join(ids, ",")))
	h.Write([]byte("|"))
	h.Write([]byte(signalType))
	return hex.EncodeToString(h.Sum(nil))
}

// NewCluster builds a cluster for a fresh detection, keyed by its
// account set and signal type.
func NewCluster(accountIDs []uuid.UUID, sig Signal, confidence float64) *Cluster {
	now := time.Now().UTC()
	return &Cluster{
		ClusterKey: ComputeClusterKey(accountIDs, sig.Type),
		AccountIDs: dedupeAccounts(accountIDs),
		Signals:    []Signal{sig},
		Confidence: clampUnit(confidence),
		Status:     StatusSuspected,
		DetectedAt: now,
		UpdatedAt:  now,
	}
}

func dedupeAccounts(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
