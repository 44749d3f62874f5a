package database

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/craftlink/sentinel/pkg/resilience"
)

// IsRetryable reports whether a Postgres error is transient enough to
// retry. Cancelled contexts are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return true
		}
		// Class 53: insufficient resources (too many connections, out
		// of memory). Usually momentary under load.
		if strings.HasPrefix(pgErr.Code, "53") {
			return true
		}
	}
	return false
}

// RetryConfig returns the retry policy for transient database errors.
func RetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryableChecker = IsRetryable
	return cfg
}
