package signals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/config"
)

var (
	clustersDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_clusters_detected_total",
		Help: "Candidate clusters produced per collector.",
	}, []string{"collector"})

	collectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_collector_failures_total",
		Help: "Collector runs that returned an error.",
	}, []string{"collector"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_cluster_scan_duration_seconds",
		Help:    "Wall time of a full cluster scan.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// Escalator decides what happens to merged clusters: persistence,
// case opening, downstream notifications.
type Escalator interface {
	Escalate(ctx context.Context, clusters []*Cluster) error
}

// ScannerService runs the detection pipeline: collect, merge, escalate.
type ScannerService interface {
	Scan(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error)
	GetCluster(ctx context.Context, clusterKey string) (*Cluster, error)
	ListClusters(ctx context.Context, status ClusterStatus, limit, offset int) ([]*Cluster, int64, error)
}

type Service struct {
	collectors []Collector
	merger     *Merger
	escalator  Escalator
	repo       ClusterRepository
	logger     *zap.Logger
}

var _ ScannerService = (*Service)(nil)

// NewService creates the scan pipeline over the given collectors.
func NewService(collectors []Collector, merger *Merger, escalator Escalator, repo ClusterRepository, logger *zap.Logger) *Service {
	return &Service{
		collectors: collectors,
		merger:     merger,
		escalator:  escalator,
		repo:       repo,
		logger:     logger,
	}
}

// DefaultCollectors wires every detection heuristic against the
// platform readers.
func DefaultCollectors(sessions SessionReader, messages MessageReader, activity ActivityReader, referrals ReferralReader, cfg *config.DetectionConfig) []Collector {
	return []Collector{
		NewIPCollector(sessions, cfg),
		NewDeviceCollector(sessions, cfg),
		NewBehavioralCollector(activity, messages, cfg),
		NewScriptCollector(messages, cfg),
		NewReferralCollector(referrals),
		NewSyncCollector(activity, cfg),
	}
}

// Scan runs all collectors over the account population, merges
// overlapping candidates and hands the result to the escalator. A
// failing collector is logged and skipped; the scan continues with
// whatever the others produced.
func (s *Service) Scan(ctx context.Context, accountIDs []uuid.UUID) ([]*Cluster, error) {
	start := time.Now()
	defer func() { scanDuration.Observe(time.Since(start).Seconds()) }()

	var candidates []*Cluster
	for _, collector := range s.collectors {
		clusters, err := collector.Collect(ctx, accountIDs)
		if err != nil {
			collectorFailures.WithLabelValues(collector.Name()).Inc()
			s.logger.Error("collector failed",
				zap.String("collector", collector.Name()),
				zap.Int("accounts", len(accountIDs)),
				zap.Error(err))
			continue
		}
		clustersDetected.WithLabelValues(collector.Name()).Add(float64(len(clusters)))
		candidates = append(candidates, clusters...)
	}

	merged := s.merger.Merge(candidates)
	if len(merged) == 0 {
		return nil, nil
	}

	if err := s.escalator.Escalate(ctx, merged); err != nil {
		return merged, err
	}

	s.logger.Info("cluster scan complete",
		zap.Int("accounts", len(accountIDs)),
		zap.Int("candidates", len(candidates)),
		zap.Int("merged", len(merged)),
		zap.Duration("took", time.Since(start)))
	return merged, nil
}

func (s *Service) GetCluster(ctx context.Context, clusterKey string) (*Cluster, error) {
	return s.repo.GetCluster(ctx, clusterKey)
}

func (s *Service) ListClusters(ctx context.Context, status ClusterStatus, limit, offset int) ([]*Cluster, int64, error) {
	return s.repo.ListClusters(ctx, status, limit, offset)
}
