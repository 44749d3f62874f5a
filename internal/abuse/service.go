package abuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/config"
	"github.com/craftlink/sentinel/pkg/eventbus"
)

var signalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_abuse_signals_total",
	Help: "Abuse signals emitted, by rule and severity.",
}, []string{"rule", "severity"})

// Detector evaluates abuse rules and emits signals.
type Detector struct {
	reader     UsageReader
	signals    SignalRepository
	remediator Remediator
	bus        Publisher
	cfg        *config.DetectionConfig
	logger     *zap.Logger
}

func NewDetector(reader UsageReader, signals SignalRepository, remediator Remediator, bus Publisher, cfg *config.DetectionConfig, logger *zap.Logger) *Detector {
	return &Detector{
		reader:     reader,
		signals:    signals,
		remediator: remediator,
		bus:        bus,
		cfg:        cfg,
		logger:     logger,
	}
}

// EvaluateRule counts qualifying records for one rule and user and, at
// or above the configured threshold, emits a signal and applies the
// policy action. Returns nil when the count stays under threshold.
func (d *Detector) EvaluateRule(ctx context.Context, signalType SignalType, userID uuid.UUID) (*Signal, error) {
	rule, ok := d.cfg.Rules[string(signalType)]
	if !ok {
		return nil, fmt.Errorf("no rule configured for %s", signalType)
	}

	now := time.Now().UTC()
	count, err := d.countFor(ctx, signalType, userID, now.Add(-rule.Window))
	if err != nil {
		return nil, fmt.Errorf("count %s for %s: %w", signalType, userID, err)
	}

	severity := severityFor(count, rule)
	if severity == "" {
		return nil, nil
	}

	// Bucketing the window start makes the key stable across concurrent
	// evaluations inside the same window.
	windowStart := now.Truncate(rule.Window)
	signal := &Signal{
		SignalKey:  ComputeSignalKey(signalType, userID, windowStart),
		UserID:     userID,
		SignalType: signalType,
		Severity:   severity,
		AutoAction: ActionFor(signalType, severity),
		Metadata: map[string]interface{}{
			"count":     count,
			"threshold": rule.Threshold,
			"window":    rule.Window.String(),
		},
		DetectedAt: now,
	}

	created, err := d.signals.InsertSignal(ctx, signal)
	if err != nil {
		return nil, fmt.Errorf("persist signal %s: %w", signal.SignalKey, err)
	}
	if !created {
		return signal, nil
	}

	signalsEmitted.WithLabelValues(string(signalType), string(severity)).Inc()
	d.logger.Info("abuse signal emitted",
		zap.String("rule", string(signalType)),
		zap.String("user_id", userID.String()),
		zap.String("severity", string(severity)),
		zap.String("action", string(signal.AutoAction)),
		zap.Int("count", count))

	if err := d.bus.Publish(ctx, eventbus.SubjectSignalDetected, eventbus.SignalDetectedData{
		SignalKey: signal.SignalKey,
		UserID:    userID,
		Type:      string(signalType),
		Severity:  string(severity),
	}); err != nil {
		d.logger.Warn("signal event publish failed",
			zap.String("signal_key", signal.SignalKey), zap.Error(err))
	}

	if signal.AutoAction != ActionNone {
		if err := d.remediator.Execute(ctx, signal); err != nil {
			return signal, fmt.Errorf("apply %s for signal %s: %w", signal.AutoAction, signal.SignalKey, err)
		}
	}
	return signal, nil
}

// severityFor applies the two-tier threshold, boundary inclusive on
// both tiers. The base tier comes from the rule; the escalation
// multiple bumps it one tier up.
func severityFor(count int, rule config.RuleConfig) Severity {
	if rule.Threshold <= 0 || count < rule.Threshold {
		return ""
	}
	base := baseSeverity(rule)
	if rule.Escalation > 0 && count >= rule.Threshold*rule.Escalation {
		return escalate(base)
	}
	return base
}

func baseSeverity(rule config.RuleConfig) Severity {
	switch Severity(rule.BaseSeverity) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(rule.BaseSeverity)
	default:
		return SeverityHigh
	}
}

func escalate(s Severity) Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

func (d *Detector) countFor(ctx context.Context, signalType SignalType, userID uuid.UUID, since time.Time) (int, error) {
	switch signalType {
	case SignalRefundLoop:
		return d.reader.RefundCount(ctx, userID, since)
	case SignalPanicSpam:
		return d.reader.PanicEventCount(ctx, userID, since)
	case SignalFakeMismatch:
		return d.reader.MismatchReportCount(ctx, userID, since)
	case SignalBotVelocity:
		return d.reader.ActionCount(ctx, userID, since)
	case SignalPromptAbuse:
		return d.reader.FlaggedPromptCount(ctx, userID, since)
	case SignalCancellationFarming:
		return d.reader.CancellationCount(ctx, userID, since)
	case SignalTokenDrain:
		return d.reader.TokenSpendCount(ctx, userID, since)
	default:
		return 0, fmt.Errorf("unknown signal type %s", signalType)
	}
}

// ScanRule evaluates one rule over an account population. Per-user
// failures are logged and aggregated; the scan finishes the batch.
func (d *Detector) ScanRule(ctx context.Context, signalType SignalType, userIDs []uuid.UUID) (int, error) {
	var errs []error
	emitted := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		signal, err := d.EvaluateRule(ctx, signalType, userID)
		if err != nil {
			d.logger.Warn("rule evaluation failed",
				zap.String("rule", string(signalType)),
				zap.String("user_id", userID.String()),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if signal != nil {
			emitted++
		}
	}
	return emitted, errors.Join(errs...)
}

func (d *Detector) ListSignals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Signal, int64, error) {
	return d.signals.ListSignals(ctx, userID, limit, offset)
}
