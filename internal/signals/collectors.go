package signals

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/craftlink/sentinel/pkg/config"
)

const (
	minIPAccounts       = 3
	minDeviceAccounts   = 2
	minScriptMatches    = 3
	minScriptMessageLen = 20
	messageSampleLimit  = 50
)

// Collector is one independent detection heuristic. Collectors read
// platform history for a working set of accounts and emit zero or more
// candidate clusters. Missing or empty data yields no clusters, never
// an error.
type Collector interface {
	Name() string
	Collect(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error)
}

func lookback(cfg *config.DetectionConfig) time.Time {
	days := cfg.LookbackDays
	if days <= 0 {
		days = 30
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}

// ---------------------------------------------------------------------------
// IP correlation

// IPCollector groups accounts by shared session IP. Three or more
// accounts on one IP is a candidate cluster.
type IPCollector struct {
	sessions SessionReader
	cfg      *config.DetectionConfig
}

func NewIPCollector(sessions SessionReader, cfg *config.DetectionConfig) *IPCollector {
	return &IPCollector{sessions: sessions, cfg: cfg}
}

func (c *IPCollector) Name() string { return "ip_correlation" }

func (c *IPCollector) Collect(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error) {
	sessions, err := c.sessions.RecentSessions(ctx, accountIDs, lookback(c.cfg))
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	byIP := make(map[string]map[uuid.UUID]struct{})
	for _, s := range sessions {
		if s.IPAddress == "" {
			continue
		}
		if byIP[s.IPAddress] == nil {
			byIP[s.IPAddress] = make(map[uuid.UUID]struct{})
		}
		byIP[s.IPAddress][s.AccountID] = struct{}{}
	}

	var clusters []*Cluster
	for ip, accounts := range byIP {
		if len(accounts) < minIPAccounts {
			continue
		}
		ids := accountSetToSlice(accounts)
		confidence := math.Min(0.95, 0.5+0.1*float64(len(ids)-minIPAccounts))
		sig := Signal{
			Type:     SignalIPCorrelation,
			Strength: confidence,
			Evidence: map[string]interface{}{
				"ip_address":    ip,
				"account_count": len(ids),
			},
			Description: fmt.Sprintf("%d accounts sharing IP %s", len(ids), ip),
		}
		clusters = append(clusters, NewCluster(ids, sig, confidence))
	}
	return clusters, nil
}

// ---------------------------------------------------------------------------
// Device correlation

// DeviceCollector groups accounts by shared device fingerprint. Two
// accounts on one device is already suspicious.
type DeviceCollector struct {
	sessions SessionReader
	cfg      *config.DetectionConfig
}

func NewDeviceCollector(sessions SessionReader, cfg *config.DetectionConfig) *DeviceCollector {
	return &DeviceCollector{sessions: sessions, cfg: cfg}
}

func (c *DeviceCollector) Name() string { return "device_correlation" }

func (c *DeviceCollector) Collect(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error) {
	sessions, err := c.sessions.RecentSessions(ctx, accountIDs, lookback(c.cfg))
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	byDevice := make(map[string]map[uuid.UUID]struct{})
	for _, s := range sessions {
		if s.DeviceFingerprint == "" {
			continue
		}
		if byDevice[s.DeviceFingerprint] == nil {
			byDevice[s.DeviceFingerprint] = make(map[uuid.UUID]struct{})
		}
		byDevice[s.DeviceFingerprint][s.AccountID] = struct{}{}
	}

	var clusters []*Cluster
	for fingerprint, accounts := range byDevice {
		if len(accounts) < minDeviceAccounts {
			continue
		}
		ids := accountSetToSlice(accounts)
		confidence := math.Min(0.98, 0.6+0.15*float64(len(ids)-minDeviceAccounts))
		sig := Signal{
			Type:     SignalDeviceCorrelation,
			Strength: confidence,
			Evidence: map[string]interface{}{
				"device_fingerprint": fingerprint,
				"account_count":      len(ids),
			},
			Description: fmt.Sprintf("%d accounts sharing device %s", len(ids), fingerprint),
		}
		clusters = append(clusters, NewCluster(ids, sig, confidence))
	}
	return clusters, nil
}

// ---------------------------------------------------------------------------
// Behavioral similarity

// BehavioralCollector compares accounts pairwise on active-hour sets
// and message-token sets. Similarity is the average of the two Jaccard
// overlap ratios.
type BehavioralCollector struct {
	activity ActivityReader
	messages MessageReader
	cfg      *config.DetectionConfig
}

func NewBehavioralCollector(activity ActivityReader, messages MessageReader, cfg *config.DetectionConfig) *BehavioralCollector {
	return &BehavioralCollector{activity: activity, messages: messages, cfg: cfg}
}

func (c *BehavioralCollector) Name() string { return "behavioral_similarity" }

func (c *BehavioralCollector) Collect(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error) {
	since := lookback(c.cfg)

	timestamps, err := c.activity.ActivityTimestamps(ctx, accountIDs, since)
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	messages, err := c.messages.RecentMessages(ctx, accountIDs, since, messageSampleLimit)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	hourSets := make(map[uuid.UUID]map[int]struct{}, len(accountIDs))
	tokenSets := make(map[uuid.UUID]map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		hourSets[id] = activeHours(timestamps[id])
		tokenSets[id] = messageTokens(messages[id])
	}

	threshold := c.cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.7
	}

	var clusters []*Cluster
	for i := 0; i < len(accountIDs); i++ {
		for j := i + 1; j < len(accountIDs); j++ {
			a, b := accountIDs[i], accountIDs[j]
			hourSim := jaccardInt(hourSets[a], hourSets[b])
			tokenSim := jaccardString(tokenSets[a], tokenSets[b])
			similarity := (hourSim + tokenSim) / 2
			if similarity <= threshold {
				continue
			}
			sig := Signal{
				Type:     SignalBehavioral,
				Strength: similarity,
				Evidence: map[string]interface{}{
					"active_hour_similarity": hourSim,
					"token_similarity":       tokenSim,
				},
				Description: fmt.Sprintf("behavioral similarity %.2f between %s and %s", similarity, a, b),
			}
			clusters = append(clusters, NewCluster([]uuid.UUID{a, b}, sig, similarity))
		}
	}
	return clusters, nil
}

func activeHours(timestamps []time.Time) map[int]struct{} {
	hours := make(map[int]struct{})
	for _, ts := range timestamps {
		hours[ts.UTC().Hour()] = struct{}{}
	}
	return hours
}

func messageTokens(messages []Message) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, m := range messages {
		for _, token := range strings.Fields(strings.ToLower(m.Body)) {
			tokens[token] = struct{}{}
		}
	}
	return tokens
}

func jaccardInt(a, b map[int]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for v := range a {
		if _, ok := b[v]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func jaccardString(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for v := range a {
		if _, ok := b[v]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// ---------------------------------------------------------------------------
// Message script detection

// ScriptCollector counts identical long messages between account pairs.
// Bot farms reuse message templates across accounts.
type ScriptCollector struct {
	messages MessageReader
	cfg      *config.DetectionConfig
}

func NewScriptCollector(messages MessageReader, cfg *config.DetectionConfig) *ScriptCollector {
	return &ScriptCollector{messages: messages, cfg: cfg}
}

func (c *ScriptCollector) Name() string { return "message_script" }

func (c *ScriptCollector) Collect(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error) {
	messages, err := c.messages.RecentMessages(ctx, accountIDs, lookback(c.cfg), messageSampleLimit)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	bodySets := make(map[uuid.UUID]map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		set := make(map[string]struct{})
		for _, m := range messages[id] {
			if len(m.Body) > minScriptMessageLen {
				set[m.Body] = struct{}{}
			}
		}
		bodySets[id] = set
	}

	var clusters []*Cluster
	for i := 0; i < len(accountIDs); i++ {
		for j := i + 1; j < len(accountIDs); j++ {
			a, b := accountIDs[i], accountIDs[j]
			identical := 0
			for body := range bodySets[a] {
				if _, ok := bodySets[b][body]; ok {
					identical++
				}
			}
			if identical < minScriptMatches {
				continue
			}
			confidence := math.Min(0.95, 0.6+0.1*float64(identical))
			sig := Signal{
				Type:     SignalMessageScript,
				Strength: confidence,
				Evidence: map[string]interface{}{
					"identical_messages": identical,
				},
				Description: fmt.Sprintf("%d identical scripted messages between %s and %s", identical, a, b),
			}
			clusters = append(clusters, NewCluster([]uuid.UUID{a, b}, sig, confidence))
		}
	}
	return clusters, nil
}

// ---------------------------------------------------------------------------
// Referral loop detection

// ReferralCollector walks the account -> referrer graph looking for
// cycles. A referral loop is the classic bonus-farming shape.
type ReferralCollector struct {
	referrals ReferralReader
}

func NewReferralCollector(referrals ReferralReader) *ReferralCollector {
	return &ReferralCollector{referrals: referrals}
}

func (c *ReferralCollector) Name() string { return "referral_loop" }

func (c *ReferralCollector) Collect(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error) {
	referrers, err := c.referrals.ReferrerMap(ctx, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("read referral graph: %w", err)
	}

	visited := make(map[uuid.UUID]bool)
	var clusters []*Cluster

	for _, start := range accountIDs {
		if visited[start] {
			continue
		}

		// Walk the referrer chain tracking the current path. Revisiting a
		// node already on the path closes a cycle; the cycle is the
		// sub-path from its first occurrence.
		path := []uuid.UUID{}
		onPath := make(map[uuid.UUID]int)
		current := start
		for {
			if idx, ok := onPath[current]; ok {
				cycle := append([]uuid.UUID(nil), path[idx:]...)
				clusters = append(clusters, c.cycleCluster(cycle))
				break
			}
			if visited[current] {
				break
			}
			onPath[current] = len(path)
			path = append(path, current)

			next, ok := referrers[current]
			if !ok {
				break
			}
			current = next
		}

		for _, id := range path {
			visited[id] = true
		}
	}
	return clusters, nil
}

func (c *ReferralCollector) cycleCluster(cycle []uuid.UUID) *Cluster {
	confidence := math.Min(0.9, 0.7+0.05*float64(len(cycle)))
	sig := Signal{
		Type:     SignalReferralLoop,
		Strength: confidence,
		Evidence: map[string]interface{}{
			"cycle_length": len(cycle),
		},
		Description: fmt.Sprintf("referral loop of %d accounts", len(cycle)),
	}
	return NewCluster(cycle, sig, confidence)
}

// ---------------------------------------------------------------------------
// Synchronized activity detection

// SyncCollector compares activity timelines pairwise. Accounts acting
// in lockstep within a short window are likely operated together.
type SyncCollector struct {
	activity ActivityReader
	cfg      *config.DetectionConfig
}

func NewSyncCollector(activity ActivityReader, cfg *config.DetectionConfig) *SyncCollector {
	return &SyncCollector{activity: activity, cfg: cfg}
}

func (c *SyncCollector) Name() string { return "synchronized_activity" }

func (c *SyncCollector) Collect(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error) {
	timestamps, err := c.activity.ActivityTimestamps(ctx, accountIDs, lookback(c.cfg))
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}

	window := c.cfg.SyncWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	threshold := c.cfg.SyncThreshold
	if threshold <= 0 {
		threshold = 0.6
	}

	var clusters []*Cluster
	for i := 0; i < len(accountIDs); i++ {
		for j := i + 1; j < len(accountIDs); j++ {
			a, b := accountIDs[i], accountIDs[j]
			t1, t2 := timestamps[a], timestamps[b]
			if len(t1) == 0 || len(t2) == 0 {
				continue
			}

			matches := countSynchronized(t1, t2, window)
			shorter := len(t1)
			if len(t2) < shorter {
				shorter = len(t2)
			}
			synchronization := float64(matches) / float64(shorter)
			if synchronization <= threshold {
				continue
			}

			sig := Signal{
				Type:     SignalSynchronized,
				Strength: clampUnit(synchronization),
				Evidence: map[string]interface{}{
					"matched_events": matches,
					"window_minutes": window.Minutes(),
				},
				Description: fmt.Sprintf("synchronization %.2f between %s and %s", synchronization, a, b),
			}
			clusters = append(clusters, NewCluster([]uuid.UUID{a, b}, sig, synchronization))
		}
	}
	return clusters, nil
}

// countSynchronized greedily pairs sorted timestamps within the window.
// Each timestamp participates in at most one match.
func countSynchronized(t1, t2 []time.Time, window time.Duration) int {
	a := append([]time.Time(nil), t1...)
	b := append([]time.Time(nil), t2...)
	sort.Slice(a, func(i, j int) bool { return a[i].Before(a[j]) })
	sort.Slice(b, func(i, j int) bool { return b[i].Before(b[j]) })

	matches := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		delta := a[i].Sub(b[j])
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			matches++
			i++
			j++
			continue
		}
		if a[i].Before(b[j]) {
			i++
		} else {
			j++
		}
	}
	return matches
}

func accountSetToSlice(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
