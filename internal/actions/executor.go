package actions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/internal/abuse"
	"github.com/craftlink/sentinel/internal/alerts"
)

var actionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_actions_executed_total",
	Help: "Enforcement actions executed, partitioned by action.",
}, []string{"action"})

// Executor applies the remediation a signal's policy selected.
// Each signal is acted on exactly once: the action record claims the
// signal key before any state changes.
type Executor struct {
	flags  FlagRepository
	router alerts.AlertRouter
	logger *zap.Logger
}

func NewExecutor(flags FlagRepository, router alerts.AlertRouter, logger *zap.Logger) *Executor {
	return &Executor{flags: flags, router: router, logger: logger}
}

var _ abuse.Remediator = (*Executor)(nil)

func (e *Executor) Execute(ctx context.Context, signal *abuse.Signal) error {
	if signal.AutoAction == abuse.ActionNone {
		return nil
	}

	reason := fmt.Sprintf("%s signal at %s severity", signal.SignalType, signal.Severity)

	claimed, err := e.flags.RecordAction(ctx, signal.SignalKey, signal.UserID, string(signal.AutoAction), reason)
	if err != nil {
		return fmt.Errorf("claim action for signal %s: %w", signal.SignalKey, err)
	}
	if !claimed {
		e.logger.Debug("signal already remediated",
			zap.String("signal_key", signal.SignalKey),
			zap.String("action", string(signal.AutoAction)))
		return nil
	}

	if err := e.apply(ctx, signal, reason); err != nil {
		return err
	}

	actionsExecuted.WithLabelValues(string(signal.AutoAction)).Inc()
	e.logger.Info("enforcement action executed",
		zap.String("user_id", signal.UserID.String()),
		zap.String("signal_type", string(signal.SignalType)),
		zap.String("action", string(signal.AutoAction)))

	e.emitAlert(ctx, signal)
	return nil
}

func (e *Executor) apply(ctx context.Context, signal *abuse.Signal, reason string) error {
	userID := signal.UserID
	switch signal.AutoAction {
	case abuse.ActionFreezeWallet:
		return e.flags.SetWalletFrozen(ctx, userID, reason)
	case abuse.ActionShadowBan:
		return e.flags.SetShadowBanned(ctx, userID)
	case abuse.ActionRateLimit:
		return e.flags.SetRateLimited(ctx, userID)
	case abuse.ActionManualReview:
		return e.flags.SetReviewRequired(ctx, userID)
	case abuse.ActionWarning:
		return e.flags.InsertNotice(ctx, userID, warningNotice(signal))
	default:
		return fmt.Errorf("unknown action %q", signal.AutoAction)
	}
}

// warningNotice picks the notice translation key for the signal. The
// repository localizes it to the recipient's language on insert.
func warningNotice(signal *abuse.Signal) string {
	switch signal.SignalType {
	case abuse.SignalRefundLoop:
		return "notice.refund_loop.body"
	case abuse.SignalCancellationFarming:
		return "notice.cancellation_farming.body"
	default:
		return "notice.generic.body"
	}
}

// emitAlert surfaces the executed action to operators. Alerting is
// observability, not enforcement, so a routing failure is logged and
// swallowed.
func (e *Executor) emitAlert(ctx context.Context, signal *abuse.Signal) {
	if e.router == nil {
		return
	}
	alert := &alerts.Alert{
		ID:        uuid.New(),
		AlertType: "abuse_action",
		Severity:  string(signal.Severity),
		Message: fmt.Sprintf("%s executed for user %s (%s signal)",
			signal.AutoAction, signal.UserID, signal.SignalType),
		Metadata: map[string]interface{}{
			"signal_key":  signal.SignalKey,
			"signal_type": string(signal.SignalType),
			"action":      string(signal.AutoAction),
		},
		CreatedAt: signal.DetectedAt,
	}
	if err := e.router.Route(ctx, alert); err != nil {
		e.logger.Error("failed to route action alert",
			zap.String("signal_key", signal.SignalKey),
			zap.Error(err))
	}
}
