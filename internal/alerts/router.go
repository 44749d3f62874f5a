package alerts

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var alertsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_alerts_routed_total",
	Help: "Alerts routed, partitioned by channel and delivery outcome.",
}, []string{"channel", "outcome"})

var alertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_alerts_suppressed_total",
	Help: "Alerts suppressed by the dedup window.",
})

// DedupStore remembers recently routed alerts. SetIfAbsent reports
// whether the key was newly claimed.
type DedupStore interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AlertRouter fans an alert out to its severity channels.
type AlertRouter interface {
	Route(ctx context.Context, alert *Alert) error
}

// Router delivers an alert on every channel its severity warrants.
// Delivery is best effort: a failing channel is logged and the rest
// still run. Duplicate alerts inside the dedup window are dropped.
type Router struct {
	notifiers map[string]Notifier
	dedup     DedupStore
	window    time.Duration
	logger    *zap.Logger
}

func NewRouter(notifiers []Notifier, dedup DedupStore, window time.Duration, logger *zap.Logger) *Router {
	byName := make(map[string]Notifier, len(notifiers))
	for _, n := range notifiers {
		byName[n.Name()] = n
	}
	return &Router{notifiers: byName, dedup: dedup, window: window, logger: logger}
}

var _ AlertRouter = (*Router)(nil)

func (r *Router) Route(ctx context.Context, alert *Alert) error {
	if r.dedup != nil && r.window > 0 {
		fresh, err := r.dedup.SetIfAbsent(ctx, alert.DedupKey(), r.window)
		if err != nil {
			// Dedup is an optimization. Deliver anyway rather than
			// lose an alert to a store hiccup.
			r.logger.Warn("alert dedup check failed", zap.Error(err))
		} else if !fresh {
			alertsSuppressed.Inc()
			r.logger.Debug("alert suppressed by dedup window",
				zap.String("alert_type", alert.AlertType),
				zap.String("severity", alert.Severity))
			return nil
		}
	}

	// Resolved channels are stored back on the alert so the persisted
	// row records where delivery was attempted.
	if len(alert.Channels) == 0 {
		alert.Channels = ChannelsFor(alert.Severity)
	}

	for _, channel := range alert.Channels {
		notifier, ok := r.notifiers[channel]
		if !ok {
			continue
		}
		if err := notifier.Notify(ctx, alert); err != nil {
			alertsRouted.WithLabelValues(channel, "failure").Inc()
			r.logger.Error("alert delivery failed",
				zap.String("channel", channel),
				zap.String("alert_type", alert.AlertType),
				zap.String("severity", alert.Severity),
				zap.Error(err))
			continue
		}
		alertsRouted.WithLabelValues(channel, "success").Inc()
	}
	return nil
}
