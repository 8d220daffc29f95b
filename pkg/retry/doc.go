// Package retry provides exponential backoff retry for transient failures.
//
// Two presets are provided:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay, for short one-off
//     operations.
//   - Reconnect(): 10 attempts, 500ms-10s delay, for reopening a serial
//     device that dropped out while streaming.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Reconnect(), func() error {
//	    return input.open(ctx)
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately. Cancelling ctx
// stops it during backoff. Config.OnRetry observes each failed attempt, which
// the serial input uses for its rate-limited warnings.
package retry
