package memory

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/loomlabs/loom/internal/log"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 100 * time.Millisecond
)

// withRetry runs fn up to retryAttempts times, backing off exponentially
// between attempts. Only transient connection errors are retried; everything
// else returns immediately.
func withRetry(ctx context.Context, logger log.Logger, op string, fn func(ctx context.Context) error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !transientConnError(err) || attempt == retryAttempts {
			return err
		}
		logger.Warn("transient database error, retrying",
			"op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// transientConnError reports whether err looks like a dropped or refused
// connection that a fresh attempt could survive. Context cancellation is
// never transient; the caller has given up.
func transientConnError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions; 57P01 is admin shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01"
	}
	return false
}
