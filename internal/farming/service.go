package farming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/internal/signals"
	"github.com/craftlink/sentinel/pkg/common"
	"github.com/craftlink/sentinel/pkg/config"
	"github.com/craftlink/sentinel/pkg/eventbus"
)

var casesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_farming_cases_opened_total",
	Help: "Farming cases opened, by severity.",
}, []string{"severity"})

// Service persists high-confidence clusters, opens cases and drives
// the investigation lifecycle.
type Service struct {
	cases    CaseRepository
	clusters signals.ClusterRepository
	bus      Publisher
	cfg      *config.DetectionConfig
	logger   *zap.Logger
}

var _ signals.Escalator = (*Service)(nil)

func NewService(cases CaseRepository, clusters signals.ClusterRepository, bus Publisher, cfg *config.DetectionConfig, logger *zap.Logger) *Service {
	return &Service{
		cases:    cases,
		clusters: clusters,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
	}
}

// Escalate walks merged clusters, persisting those above the persist
// threshold and opening a case for those above the case threshold. A
// failure on one cluster is recorded and the rest still run.
func (s *Service) Escalate(ctx context.Context, clusters []*signals.Cluster) error {
	var errs []error
	for _, cluster := range clusters {
		if cluster.Confidence <= s.cfg.PersistThreshold {
			continue
		}
		if err := s.clusters.UpsertCluster(ctx, cluster); err != nil {
			errs = append(errs, fmt.Errorf("persist cluster %s: %w", cluster.ClusterKey, err))
			continue
		}
		if cluster.Confidence <= s.cfg.CaseThreshold {
			continue
		}
		if err := s.openCase(ctx, cluster); err != nil {
			errs = append(errs, fmt.Errorf("open case for cluster %s: %w", cluster.ClusterKey, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) openCase(ctx context.Context, cluster *signals.Cluster) error {
	severity := SeverityFor(cluster.Confidence, s.cfg.CriticalThreshold, s.cfg.CaseThreshold)
	caseKey := ComputeCaseKey(cluster.ClusterKey)

	evidence := map[string]interface{}{
		"cluster_key": cluster.ClusterKey,
		"confidence":  cluster.Confidence,
		"signals":     cluster.Signals,
	}
	farmingCase := &FarmingCase{
		CaseKey:         caseKey,
		CaseType:        caseTypeFor(cluster),
		Status:          StatusDetected,
		Severity:        severity,
		InvolvedUserIDs: cluster.AccountIDs,
		Evidence:        evidence,
		DetectedAt:      time.Now().UTC(),
	}

	created, err := s.cases.CreateCase(ctx, farmingCase)
	if err != nil {
		return err
	}

	if err := s.clusters.MarkConfirmed(ctx, cluster.ClusterKey, caseKey); err != nil {
		return err
	}

	if !created {
		return nil
	}
	casesOpened.WithLabelValues(string(severity)).Inc()
	s.logger.Info("farming case opened",
		zap.String("case_key", caseKey),
		zap.String("severity", string(severity)),
		zap.Int("accounts", len(cluster.AccountIDs)),
		zap.Float64("confidence", cluster.Confidence))

	s.publishCaseEvents(ctx, farmingCase)
	return nil
}

// publishCaseEvents announces the case and queues a trust rescore for
// every involved account. Publish failures are logged only; the case
// already exists and rescoring also runs on the daily schedule.
func (s *Service) publishCaseEvents(ctx context.Context, farmingCase *FarmingCase) {
	err := s.bus.Publish(ctx, eventbus.SubjectCaseOpened, eventbus.CaseOpenedData{
		CaseKey:  farmingCase.CaseKey,
		Severity: string(farmingCase.Severity),
		UserIDs:  farmingCase.InvolvedUserIDs,
	})
	if err != nil {
		s.logger.Warn("case opened event publish failed",
			zap.String("case_key", farmingCase.CaseKey), zap.Error(err))
	}

	for _, userID := range farmingCase.InvolvedUserIDs {
		err := s.bus.Publish(ctx, eventbus.SubjectTrustRecompute, eventbus.TrustRecomputeData{
			UserID: userID,
			Reason: "farming_case_" + string(farmingCase.Severity),
		})
		if err != nil {
			s.logger.Warn("trust recompute publish failed",
				zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}

// caseTypeFor picks the dominant signal type as the case type.
func caseTypeFor(cluster *signals.Cluster) string {
	if len(cluster.Signals) == 0 {
		return "account_farming"
	}
	strongest := cluster.Signals[0]
	for _, sig := range cluster.Signals[1:] {
		if sig.Strength > strongest.Strength {
			strongest = sig
		}
	}
	return string(strongest.Type)
}

// ---------------------------------------------------------------------------
// Investigation lifecycle

var validResolutions = map[CaseStatus]bool{
	StatusConfirmed:     true,
	StatusFalsePositive: true,
	StatusResolved:      true,
}

func (s *Service) GetCase(ctx context.Context, caseKey string) (*FarmingCase, error) {
	return s.cases.GetCase(ctx, caseKey)
}

func (s *Service) ListCases(ctx context.Context, status CaseStatus, limit, offset int) ([]*FarmingCase, int64, error) {
	return s.cases.ListCases(ctx, status, limit, offset)
}

// ResolveCase records an investigator's verdict on a case.
func (s *Service) ResolveCase(ctx context.Context, caseKey string, resolvedBy uuid.UUID, status CaseStatus, resolution string) error {
	if !validResolutions[status] {
		return common.NewBadRequestError("invalid resolution status")
	}
	existing, err := s.cases.GetCase(ctx, caseKey)
	if err != nil {
		return common.NewNotFoundError("case not found")
	}
	if existing.Status == StatusFalsePositive || existing.Status == StatusResolved {
		return common.NewConflictError("case already resolved")
	}
	return s.cases.UpdateCaseStatus(ctx, caseKey, status, &resolution, &resolvedBy)
}

// AppealCase moves a decided case back into the appeal queue.
func (s *Service) AppealCase(ctx context.Context, caseKey string, reason string) error {
	existing, err := s.cases.GetCase(ctx, caseKey)
	if err != nil {
		return common.NewNotFoundError("case not found")
	}
	if existing.Status != StatusConfirmed && existing.Status != StatusResolved {
		return common.NewConflictError("only decided cases can be appealed")
	}
	return s.cases.UpdateCaseStatus(ctx, caseKey, StatusAppealed, &reason, nil)
}
