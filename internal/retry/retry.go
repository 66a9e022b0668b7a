// Package retry provides the per-part retry budget used by the transfer engine.
// It applies exponential backoff with jitter and classifies failures as
// transient or permanent.
package retry

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

// Defaults applied when a RetryConfig field is unset.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
)

// Policy is an immutable retry budget. It is safe for concurrent use.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewPolicy creates a policy from cfg, filling unset fields with defaults.
func NewPolicy(cfg xfertypes.RetryConfig) *Policy {
	p := &Policy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.baseDelay <= 0 {
		p.baseDelay = DefaultBaseDelay
	}
	if p.maxDelay <= 0 {
		p.maxDelay = DefaultMaxDelay
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	return p
}

// MaxAttempts returns the total number of tries, including the first.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Delay returns the backoff before the retry that follows the given attempt.
// It grows as baseDelay * 2^(attempt-1) with ±25% jitter, capped at maxDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.maxDelay
	if exp := float64(p.baseDelay) * math.Pow(2, float64(attempt-1)); exp < float64(p.maxDelay) {
		delay = time.Duration(exp)
	}

	jitterRange := int64(float64(delay) * 0.25)
	if jitterRange > 0 {
		delay += time.Duration(rand.Int63n(2*jitterRange) - jitterRange) //nolint:gosec // jitter needs no crypto
	}

	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Do calls fn until it succeeds, fails permanently, or the budget runs out.
// onRetry, if non-nil, is called before each backoff sleep. When the budget is
// exhausted the returned error matches both ErrRetryBudgetExhausted and the last
// failure. Permanent failures are returned unchanged.
func (p *Policy) Do(
	ctx context.Context,
	fn func(attempt int) error,
	onRetry func(attempt int, err error, delay time.Duration),
) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return stderrors.Join(err, lastErr)
			}
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == p.maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return stderrors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return errors.Wrap(errors.ErrRetryBudgetExhausted, lastErr)
}

// IsRetryable reports whether err is a transient failure worth another attempt.
// Cancellation, protocol defects and errors that a retry cannot change are
// permanent. Everything else, including unclassified I/O errors, is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.IsProtocolError(err) ||
		stderrors.Is(err, errors.ErrRetryBudgetExhausted) ||
		stderrors.Is(err, errors.ErrInvalidInput) ||
		stderrors.Is(err, errors.ErrObjectNotFound) ||
		stderrors.Is(err, errors.ErrSessionNotFound) ||
		stderrors.Is(err, errors.ErrSessionClosed) ||
		stderrors.Is(err, errors.ErrAccessDenied) ||
		stderrors.Is(err, errors.ErrEndpointNotFound) {
		return false
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown",
			"ThrottlingException",
			"RequestLimitExceeded",
			"TooManyRequestsException",
			"RequestTimeout",
			"InternalError",
			"ServiceUnavailable":
			return true
		case "AccessDenied",
			"AccessDeniedException",
			"InvalidAccessKeyId",
			"SignatureDoesNotMatch",
			"NoSuchBucket",
			"NoSuchKey",
			"NoSuchUpload",
			"InvalidArgument",
			"InvalidPart",
			"InvalidPartOrder",
			"InvalidRange",
			"EntityTooSmall",
			"EntityTooLarge":
			return false
		}
		return apiErr.ErrorFault() != smithy.FaultClient
	}

	return true
}
