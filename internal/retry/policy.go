package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned by Policy.Do when a bounded policy runs out of
// attempts. The last operation error is wrapped alongside it.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy retries an operation with a constant backoff between attempts.
//
// MaxAttempts <= 0 retries until the operation succeeds or ctx is done.
type Policy struct {
	Backoff     time.Duration
	MaxAttempts int

	// Timer replaces the wall-clock timer used between attempts.
	Timer backoff.Timer
}

// Do runs op until it succeeds. notify, when non-nil, is called after each
// failed attempt that will be retried, with the 1-based attempt number.
func (p Policy) Do(ctx context.Context, op func() error, notify func(err error, attempt int)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Backoff)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	var last error
	wrapped := func() error {
		attempt++
		last = op()
		return last
	}
	var n backoff.Notify
	if notify != nil {
		n = func(err error, _ time.Duration) { notify(err, attempt) }
	}

	err := backoff.RetryNotifyWithTimer(wrapped, b, n, p.Timer)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.Join(ErrExhausted, last)
}
