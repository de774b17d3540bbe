// Package retry executes remote calls with transient-failure classification
// and bounded, linearly increasing backoff.
//
// Microsoft Graph and the Exchange Online admin endpoint throttle aggressively
// (429) and shed load under pressure (503/504). Callers wrap each remote call
// in Do, which retries transient failures and surfaces everything else
// untouched.
package retry

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Default policy values.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 15 * time.Second
)

// RemoteError is implemented by errors carrying remote-response metadata.
// Classification is purely structural: a status code and an explicit
// transient tag, never message text.
type RemoteError interface {
	error
	// HTTPStatus returns the response status code, or 0 when the failure
	// carried no HTTP response.
	HTTPStatus() int
	// Transient reports whether the producing layer tagged this as a
	// service-level failure worth retrying regardless of status code.
	Transient() bool
	// RetryAfter returns the raw Retry-After header value, or "".
	RetryAfter() string
}

// Classification of a failed attempt.
type Classification int

const (
	// Fatal failures are surfaced immediately, never retried.
	Fatal Classification = iota
	// Transient failures are expected to resolve on a later attempt.
	Transient
)

// Classify inspects an error's remote metadata. Transient iff the failure
// carries HTTP 429, 503 or 504, or is tagged transient by the producing
// layer. An error with no status code at all can still be transient; the
// classification does not require a response.
func Classify(err error) Classification {
	var re RemoteError
	if !errors.As(err, &re) {
		return Fatal
	}
	switch re.HTTPStatus() {
	case 429, 503, 504:
		return Transient
	}
	if re.Transient() {
		return Transient
	}
	return Fatal
}

// Policy configures the executor. The zero value is usable and equivalent
// to Default().
type Policy struct {
	// MaxRetries bounds the total number of invocations (not just retries;
	// the name is historical). Values < 1 mean DefaultMaxRetries.
	MaxRetries int
	// BaseDelay is multiplied by the attempt number to produce the wait
	// between attempts: delay = BaseDelay * attempt. The growth is linear,
	// not exponential; this reproduces the observed production behaviour.
	// Negative values mean DefaultBaseDelay.
	BaseDelay time.Duration
	// OnRetry, when set, is invoked before each wait with the attempt
	// number that just failed, the wait about to happen, and the error.
	// Left nil, failed attempts produce no output at all.
	OnRetry func(attempt int, delay time.Duration, err error)

	// sleep is a test seam; nil means a timer honouring ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the standing policy for Graph calls.
func Default() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

func (p Policy) maxRetries() int {
	if p.MaxRetries < 1 {
		return DefaultMaxRetries
	}
	return p.MaxRetries
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay < 0 {
		return DefaultBaseDelay
	}
	return p.BaseDelay
}

// Do invokes op until it succeeds, fails fatally, or the attempt budget is
// spent. The executor keeps no state across invocations and is safe for
// concurrent use; each call site owns its own Policy value.
//
// On success the result is returned immediately. A Fatal classification
// propagates the error on any attempt, including the first. When the budget
// is exhausted the error from the final attempt is returned verbatim so the
// caller keeps the original diagnostic.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var zero T

	max := p.maxRetries()
	base := p.baseDelay()
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempt := 0
	for {
		attempt++

		result, err := op()
		if err == nil {
			return result, nil
		}

		if Classify(err) != Transient || attempt >= max {
			return zero, err
		}

		delay := base * time.Duration(attempt)
		if hint, ok := retryAfterHint(err); ok {
			delay = hint
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		if serr := sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

// retryAfterHint extracts a server-supplied wait from the failure's
// Retry-After header. Only whole seconds are honoured; anything the server
// sends that does not parse as an integer is ignored and the computed
// backoff stands.
func retryAfterHint(err error) (time.Duration, bool) {
	var re RemoteError
	if !errors.As(err, &re) {
		return 0, false
	}
	raw := re.RetryAfter()
	if raw == "" {
		return 0, false
	}
	secs, perr := strconv.Atoi(raw)
	if perr != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
