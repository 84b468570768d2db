package embedengine

import (
	"context"
	"log/slog"
	"time"
)

// softBatchTimeout bounds how long a single inference batch is expected to
// take before the engine logs a warning. Per §5's timeout rule this bound
// is soft: it is used only to log-and-continue, never to cancel the
// in-flight batch (ONNX sessions are not safely interruptible mid-Run).
const softBatchTimeout = 30 * time.Second

// runWithSoftTimeout executes fn and logs a warning if it runs past
// softBatchTimeout, without cancelling it. Adapted from the shape of a
// retry-with-backoff loop: here there is nothing to retry and no
// cancellation, just an observability trip-wire around a blocking call.
func runWithSoftTimeout(ctx context.Context, label string, fn func() error) error {
	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- fn() }()

	timer := time.NewTimer(softBatchTimeout)
	defer timer.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-timer.C:
			slog.Warn("embedding batch exceeded soft timeout, continuing",
				"label", label, "elapsed", time.Since(start))
			timer.Reset(softBatchTimeout)
		case <-ctx.Done():
			// The caller's context was cancelled; fn keeps running to
			// completion (ONNX has no cooperative cancellation here) but
			// we stop waiting and surface the context error so the
			// caller's own bookkeeping (e.g. circuit breaker counters)
			// isn't blocked indefinitely.
			return ctx.Err()
		}
	}
}
