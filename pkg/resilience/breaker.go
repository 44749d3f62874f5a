package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/logger"
)

// ErrCircuitOpen is returned when an operation is rejected because the
// breaker is open and no fallback produced a value.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Operation is a unit of work executed through a breaker or retry loop.
type Operation func(ctx context.Context) (interface{}, error)

// Settings tunes a single circuit breaker instance.
type Settings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// CircuitBreaker wraps sony/gobreaker with fallback handling and metrics.
type CircuitBreaker struct {
	name     string
	breaker  *gobreaker.CircuitBreaker
	fallback FallbackFunc
}

// NewCircuitBreaker builds a breaker from the given settings. A nil
// fallback behaves like NoopFallback.
func NewCircuitBreaker(settings Settings, fallback FallbackFunc) *CircuitBreaker {
	name := nextBreakerName(settings.Name)
	if fallback == nil {
		fallback = NoopFallback
	}

	st := gobreaker.Settings{
		Name:     name,
		Interval: settings.Interval,
		Timeout:  settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		MaxRequests: settings.SuccessThreshold,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			recordBreakerStateChange(name, from, to)
		},
	}

	cb := &CircuitBreaker{
		name:     name,
		breaker:  gobreaker.NewCircuitBreaker(st),
		fallback: fallback,
	}
	recordBreakerState(name, cb.breaker.State())
	return cb
}

// Execute runs the operation through the breaker. When the breaker is
// open the fallback decides the result; the underlying operation error
// passes through unchanged otherwise.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	recordBreakerRequest(cb.name)

	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return op(ctx)
	})
	if err == nil {
		return result, nil
	}

	recordBreakerFailure(cb.name)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		recordBreakerFallback(cb.name)
		return cb.fallback(ctx, err)
	}
	return nil, err
}

// State reports the current breaker state.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// Name returns the breaker identifier used in logs and metrics.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
