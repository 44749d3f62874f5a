package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const lookbackWindow = 30 * 24 * time.Hour

var recomputes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_trust_recomputes_total",
	Help: "Trust score recomputations, by resulting level.",
}, []string{"level"})

// ScoreService computes and serves trust scores.
type ScoreService interface {
	GetScore(ctx context.Context, userID uuid.UUID) (*Score, error)
	Recompute(ctx context.Context, userID uuid.UUID) (*Score, error)
	RecomputeBatch(ctx context.Context, userIDs []uuid.UUID) (int, error)
}

type Service struct {
	performance PerformanceReader
	risk        RiskReader
	booking     BookingReader
	payout      PayoutReader
	moderation  ModerationReader
	scores      ScoreRepository
	logger      *zap.Logger
}

var _ ScoreService = (*Service)(nil)

func NewService(performance PerformanceReader, risk RiskReader, booking BookingReader, payout PayoutReader, moderation ModerationReader, scores ScoreRepository, logger *zap.Logger) *Service {
	return &Service{
		performance: performance,
		risk:        risk,
		booking:     booking,
		payout:      payout,
		moderation:  moderation,
		scores:      scores,
		logger:      logger,
	}
}

func (s *Service) GetScore(ctx context.Context, userID uuid.UUID) (*Score, error) {
	return s.scores.GetScore(ctx, userID)
}

// Recompute gathers windowed inputs, computes the score and overwrites
// the stored record. Running twice with unchanged inputs writes the
// same score.
func (s *Service) Recompute(ctx context.Context, userID uuid.UUID) (*Score, error) {
	since := time.Now().UTC().Add(-lookbackWindow)

	inputs, err := s.gatherInputs(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("gather trust inputs for %s: %w", userID, err)
	}

	quality, reliability, safety, payout, composite, level := Compute(inputs)
	score := &Score{
		UserID:           userID,
		TrustScore:       composite,
		Level:            level,
		QualityScore:     quality,
		ReliabilityScore: reliability,
		SafetyScore:      safety,
		PayoutScore:      payout,
		LastUpdatedAt:    time.Now().UTC(),
	}

	if err := s.scores.UpsertScore(ctx, score); err != nil {
		return nil, fmt.Errorf("persist trust score for %s: %w", userID, err)
	}
	recomputes.WithLabelValues(string(level)).Inc()
	return score, nil
}

// RecomputeBatch rescores every user in the slice, skipping failures.
// Returns how many users were scored; the error aggregates per-user
// failures.
func (s *Service) RecomputeBatch(ctx context.Context, userIDs []uuid.UUID) (int, error) {
	var errs []error
	scored := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Recompute(ctx, userID); err != nil {
			s.logger.Warn("trust recompute failed",
				zap.String("user_id", userID.String()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		scored++
	}
	return scored, errors.Join(errs...)
}

func (s *Service) gatherInputs(ctx context.Context, userID uuid.UUID, since time.Time) (Inputs, error) {
	var inputs Inputs
	var err error

	if inputs.Performance, err = s.performance.PerformanceStats(ctx, userID, since); err != nil {
		return inputs, err
	}
	if inputs.Risk, err = s.risk.RiskStats(ctx, userID, since); err != nil {
		return inputs, err
	}
	if inputs.Booking, err = s.booking.BookingStats(ctx, userID, since); err != nil {
		return inputs, err
	}
	if inputs.Payout, err = s.payout.PayoutStats(ctx, userID, since); err != nil {
		return inputs, err
	}
	if inputs.Moderation, err = s.moderation.ModerationStats(ctx, userID, since); err != nil {
		return inputs, err
	}
	return inputs, nil
}
