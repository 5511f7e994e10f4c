package transfer

import (
	"math"
	"time"

	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/buildbarn/bb-splitter/pkg/random"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryPolicy describes how often and at which pace failed transfers
// of individual parts are retried.
type RetryPolicy struct {
	// Total number of attempts per part, including the first.
	MaximumAttempts int
	InitialBackoff  time.Duration
	MaximumBackoff  time.Duration
	// Factor by which the backoff grows after every attempt.
	Multiplier float64
	// Fraction in range [0, 1] by which the backoff is randomly
	// increased or decreased.
	Jitter float64
}

// DefaultRetryPolicy is used when no retry policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaximumAttempts: 5,
	InitialBackoff:  100 * time.Millisecond,
	MaximumBackoff:  10 * time.Second,
	Multiplier:      2,
	Jitter:          0.2,
}

// Validate the parameters of the retry policy.
func (p *RetryPolicy) Validate() error {
	if p.MaximumAttempts < 1 {
		return errorinfo.NewInvalidInputError("Maximum number of attempts must be at least 1, while %d was provided", p.MaximumAttempts)
	}
	if p.InitialBackoff < 0 || p.MaximumBackoff < p.InitialBackoff {
		return errorinfo.NewInvalidInputError("Backoff must be in range [0, %s], while %s was provided", p.MaximumBackoff, p.InitialBackoff)
	}
	if p.Multiplier < 1 {
		return errorinfo.NewInvalidInputError("Backoff multiplier must be at least 1, while %g was provided", p.Multiplier)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return errorinfo.NewInvalidInputError("Jitter must be in range [0, 1], while %g was provided", p.Jitter)
	}
	return nil
}

// GetBackoff returns the amount of time to wait before performing the
// next attempt, given the number of attempts that have failed so far.
func (p *RetryPolicy) GetBackoff(failedAttempts int, randomGenerator random.ThreadSafeGenerator) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(failedAttempts-1))
	if maximumBackoff := float64(p.MaximumBackoff); backoff > maximumBackoff {
		backoff = maximumBackoff
	}
	if p.Jitter > 0 {
		backoff *= 1 + p.Jitter*(2*randomGenerator.Float64()-1)
	}
	return time.Duration(backoff)
}

// IsTransientError returns whether a failure of the transport may
// resolve itself when the operation is retried. Errors that indicate
// that the request itself is wrong, and errors that carry a failure
// classification (e.g., corruption of a part) are not transient.
func IsTransientError(err error) bool {
	if errorinfo.GetReason(err) != errorinfo.ReasonNone {
		return false
	}
	switch status.Code(err) {
	case codes.OK, codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.PermissionDenied,
		codes.Unauthenticated, codes.FailedPrecondition, codes.OutOfRange, codes.Unimplemented,
		codes.ResourceExhausted, codes.Canceled, codes.DataLoss:
		return false
	default:
		return true
	}
}
