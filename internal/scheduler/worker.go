package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/internal/abuse"
	"github.com/craftlink/sentinel/pkg/config"
	"github.com/craftlink/sentinel/pkg/database"
	"github.com/craftlink/sentinel/pkg/resilience"
	"github.com/craftlink/sentinel/pkg/tracing"
)

var jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_scheduler_job_runs_total",
	Help: "Scheduled job runs, partitioned by job and outcome.",
}, []string{"job", "outcome"})

var jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "sentinel_scheduler_job_duration_seconds",
	Help:    "Duration of scheduled job runs.",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
}, []string{"job"})

// job is one periodic unit of work. The lock TTL equals the interval
// so a crashed holder's lock expires before the next run is due.
type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// Worker drives the periodic detection jobs. Each job ticks on its
// own interval and takes a distributed lock before running, so a
// fleet of instances executes every job once per interval.
type Worker struct {
	accounts   AccountSource
	locks      LockManager
	scanner    ClusterScanner
	referrals  ClusterScanner
	rules      RuleScanner
	recomputer ScoreRecomputer
	cfg        *config.DetectionConfig
	logger     *zap.Logger

	instanceID string
	done       chan struct{}
	wg         sync.WaitGroup
}

func NewWorker(
	accounts AccountSource,
	locks LockManager,
	scanner ClusterScanner,
	referrals ClusterScanner,
	rules RuleScanner,
	recomputer ScoreRecomputer,
	cfg *config.DetectionConfig,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		accounts:   accounts,
		locks:      locks,
		scanner:    scanner,
		referrals:  referrals,
		rules:      rules,
		recomputer: recomputer,
		cfg:        cfg,
		logger:     logger,
		instanceID: uuid.NewString(),
		done:       make(chan struct{}),
	}
}

func (w *Worker) jobs() []job {
	return []job{
		{"cluster_scan", 6 * time.Hour, w.runClusterScan},
		{"referral_audit", 12 * time.Hour, w.runReferralAudit},
		{"trust_recompute", 24 * time.Hour, w.runTrustRecompute},
		{"bot_velocity_scan", time.Hour, w.runBotVelocityScan},
		{"cancellation_farming_scan", 6 * time.Hour, w.runCancellationFarmingScan},
	}
}

// Start launches every job loop. It returns immediately; Stop (or
// cancelling ctx) winds the loops down.
func (w *Worker) Start(ctx context.Context) {
	for _, j := range w.jobs() {
		w.wg.Add(1)
		go w.loop(ctx, j)
	}
	w.logger.Info("scheduler started", zap.String("instance_id", w.instanceID))
}

// Stop signals all job loops to exit and waits for in-flight runs.
func (w *Worker) Stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, j job) {
	defer w.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runLocked(ctx, j)
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runLocked executes the job under its distributed lock. Losing the
// lock race means another instance runs this interval.
func (w *Worker) runLocked(ctx context.Context, j job) {
	lockKey := "scheduler:lock:" + j.name

	acquired, err := w.locks.AcquireLock(ctx, lockKey, w.instanceID, j.interval)
	if err != nil {
		w.logger.Error("failed to acquire job lock", zap.String("job", j.name), zap.Error(err))
		jobRuns.WithLabelValues(j.name, "lock_error").Inc()
		return
	}
	if !acquired {
		w.logger.Debug("job locked by another instance", zap.String("job", j.name))
		jobRuns.WithLabelValues(j.name, "skipped").Inc()
		return
	}
	defer func() {
		if err := w.locks.ReleaseLock(context.WithoutCancel(ctx), lockKey, w.instanceID); err != nil {
			w.logger.Warn("failed to release job lock", zap.String("job", j.name), zap.Error(err))
		}
	}()

	// A run that outlasts the TTL would let a second instance start
	// mid-job, so the lock is refreshed while the job is in flight.
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		w.extendLock(heartbeatCtx, j, lockKey)
	}()
	defer func() {
		stopHeartbeat()
		<-heartbeatDone
	}()

	tracer := tracing.Tracer("sentinel/scheduler")
	jobCtx, span := tracer.Start(ctx, "scheduler."+j.name)
	defer span.End()
	span.SetAttributes(attribute.String("scheduler.instance_id", w.instanceID))

	start := time.Now()
	err = j.run(jobCtx)
	jobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		jobRuns.WithLabelValues(j.name, "failure").Inc()
		w.logger.Error("scheduled job failed",
			zap.String("job", j.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	jobRuns.WithLabelValues(j.name, "success").Inc()
	w.logger.Info("scheduled job completed",
		zap.String("job", j.name),
		zap.Duration("duration", time.Since(start)))
}

// extendLock refreshes the job lock at a quarter of its TTL until ctx
// is cancelled. Lost ownership ends the heartbeat; the run itself is
// not aborted, since its writes are idempotent.
func (w *Worker) extendLock(ctx context.Context, j job, lockKey string) {
	ticker := time.NewTicker(j.interval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			owned, err := w.locks.ExtendLock(ctx, lockKey, w.instanceID, j.interval)
			if err != nil {
				w.logger.Warn("failed to extend job lock",
					zap.String("job", j.name), zap.Error(err))
				continue
			}
			if !owned {
				w.logger.Warn("job lock ownership lost mid-run", zap.String("job", j.name))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// forEachBatch walks the active population in fixed-size pages and
// hands each page to fn. A failing page is logged and the walk
// continues; the first error is reported at the end.
func (w *Worker) forEachBatch(ctx context.Context, jobName string, fn func(ctx context.Context, batch []uuid.UUID) error) error {
	since := time.Now().UTC().AddDate(0, 0, -w.cfg.LookbackDays)
	batchSize := w.cfg.ScanBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	var firstErr error
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}

		batch, err := w.loadBatch(ctx, since, batchSize, offset)
		if err != nil {
			w.logger.Error("failed to load account batch",
				zap.String("job", jobName), zap.Int("offset", offset), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		if len(batch) == 0 {
			break
		}

		if err := fn(ctx, batch); err != nil {
			w.logger.Error("job batch failed",
				zap.String("job", jobName), zap.Int("offset", offset), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}

		if len(batch) < batchSize {
			break
		}
	}
	return firstErr
}

// loadBatch reads one account page, retrying transient database
// errors so a momentary failover does not abort an hours-long job.
func (w *Worker) loadBatch(ctx context.Context, since time.Time, limit, offset int) ([]uuid.UUID, error) {
	result, err := resilience.Retry(ctx, database.RetryConfig(), func(ctx context.Context) (interface{}, error) {
		return w.accounts.ActiveAccountIDs(ctx, since, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return result.([]uuid.UUID), nil
}

func (w *Worker) runClusterScan(ctx context.Context) error {
	return w.forEachBatch(ctx, "cluster_scan", func(ctx context.Context, batch []uuid.UUID) error {
		clusters, err := w.scanner.Scan(ctx, batch)
		if err != nil {
			return err
		}
		if len(clusters) > 0 {
			w.logger.Info("cluster scan batch detected clusters",
				zap.Int("accounts", len(batch)), zap.Int("clusters", len(clusters)))
		}
		return nil
	})
}

func (w *Worker) runReferralAudit(ctx context.Context) error {
	return w.forEachBatch(ctx, "referral_audit", func(ctx context.Context, batch []uuid.UUID) error {
		_, err := w.referrals.Scan(ctx, batch)
		return err
	})
}

func (w *Worker) runTrustRecompute(ctx context.Context) error {
	total := 0
	err := w.forEachBatch(ctx, "trust_recompute", func(ctx context.Context, batch []uuid.UUID) error {
		scored, err := w.recomputer.RecomputeBatch(ctx, batch)
		total += scored
		return err
	})
	w.logger.Info("trust recompute finished", zap.Int("scored", total))
	return err
}

func (w *Worker) runBotVelocityScan(ctx context.Context) error {
	return w.runRuleScan(ctx, "bot_velocity_scan", abuse.SignalBotVelocity)
}

func (w *Worker) runCancellationFarmingScan(ctx context.Context) error {
	return w.runRuleScan(ctx, "cancellation_farming_scan", abuse.SignalCancellationFarming)
}

func (w *Worker) runRuleScan(ctx context.Context, jobName string, signalType abuse.SignalType) error {
	emitted := 0
	err := w.forEachBatch(ctx, jobName, func(ctx context.Context, batch []uuid.UUID) error {
		n, err := w.rules.ScanRule(ctx, signalType, batch)
		emitted += n
		return err
	})
	if emitted > 0 {
		w.logger.Info("rule scan emitted signals",
			zap.String("signal_type", string(signalType)), zap.Int("emitted", emitted))
	}
	return err
}
