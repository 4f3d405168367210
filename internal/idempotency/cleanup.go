// Package idempotency provides cleanup utilities for idempotency key management.
package idempotency

import "time"

// DefaultExpiry is the default duration after which idempotency keys expire.
// Stripe checkout sessions expire after 24 hours, so keys beyond that horizon
// can no longer guard a live session.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys removes idempotency keys older than the specified duration
// and returns the number of keys deleted. Run it on a schedule, typically
// through jobs.RunPeriodic.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	return repo.DeleteOlderThan(expiry)
}
