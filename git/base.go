package git

import (
	"context"
	"log/slog"
	"time"
)

// Base carries the shared behavior embedded by every
// adapter: error stamping and retry with exponential
// backoff for idempotent operations.
type Base struct {
	// Tag is the adapter's platform tag, stamped into
	// every error.
	Tag Platform

	// Attempts is the total number of tries for a
	// retried operation. Values below one mean a single
	// try.
	Attempts int

	// MinWait is the first backoff delay; it doubles
	// per attempt and is capped at MaxWait.
	MinWait time.Duration
	MaxWait time.Duration
}

// Platform returns the platform tag.
func (b Base) Platform() Platform {
	return b.Tag
}

// Err builds a stamped error for this platform.
func (b Base) Err(code Code, message string) *Error {
	return NewError(b.Tag, code, message)
}

// Errf builds a stamped error with a formatted message.
func (b Base) Errf(
	code Code,
	format string,
	args ...any,
) *Error {
	return Errorf(b.Tag, code, format, args...)
}

// NotImplemented builds the stable capability-probe
// error for an unsupported operation.
func (b Base) NotImplemented(op string) *Error {
	return b.Errf(
		CodeNotImplemented,
		"%s is not supported on %s", op, b.Tag,
	)
}

// Retry runs fn up to Attempts times, backing off
// exponentially between tries. Only transient transport
// failures are retried; any other error returns
// immediately. Use this for idempotent reads and for
// mutations the platform rejects safely on duplication
// (branch creation) -- never for merges or deletes.
func (b Base) Retry(
	ctx context.Context,
	fn func(ctx context.Context) error,
) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	wait := b.MinWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	var err error

	for try := 1; try <= attempts; try++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if !IsCode(err, CodeTransport) {
			return err
		}

		if try == attempts {
			break
		}

		slog.Warn(
			"transient failure, backing off",
			"platform", b.Tag,
			"try", try,
			"wait", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return b.Errf(
				CodeTransport,
				"canceled while retrying: %v",
				ctx.Err(),
			)
		case <-time.After(wait):
		}

		wait *= 2
		if b.MaxWait > 0 && wait > b.MaxWait {
			wait = b.MaxWait
		}
	}

	return err
}
