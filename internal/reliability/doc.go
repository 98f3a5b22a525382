// Package reliability provides the retry policies shared by the socket
// transport and the bridge stages.
//
// Policies:
//   - FixedDelay: the same delay between every attempt, optional jitter
//   - ExponentialBackoff: delay multiplied per attempt and capped at MaxInterval
//
// Both take an attempt budget; Unlimited (the bridge default) retries until
// the context is cancelled. Errors can opt out of retrying by implementing
// IsRetryable() bool, see RetryableError and Permanent.
//
// Example usage:
//
//	policy := reliability.Forever(time.Second)
//	err := reliability.Retry(ctx, policy, func() error {
//	    return publisher.Publish(ctx, channel, payload)
//	})
package reliability
