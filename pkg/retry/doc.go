// Package retry provides exponential backoff retry for acquiring resources.
//
// mavrouter uses it for transport opens (serial devices that appear a moment after
// being plugged in, UDP ports still in TIME_WAIT) and for NATS KV operations.
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return t.open()
//	})
//
// Wrap an error with NonRetryable to stop immediately, for example when a
// configuration value is wrong and another attempt cannot help. With a single
// attempt (retry.Once) the operation's own error is returned unwrapped.
package retry
