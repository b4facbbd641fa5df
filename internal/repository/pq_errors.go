package repository

import (
	"errors"

	"github.com/lib/pq"
)

var retryableSQLStates = map[pq.ErrorCode]struct{}{
	"23505": {}, // unique_violation
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// IsRetryable reports whether err is a transient PostgreSQL conflict that may succeed on retry.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	_, ok := retryableSQLStates[pqErr.Code]
	return ok
}
