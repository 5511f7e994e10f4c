package transport

import (
	"context"
	"time"

	"github.com/buildbarn/bb-splitter/pkg/clock"
	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/grpc/codes"
)

type deadlineEnforcingPartTransport struct {
	base    PartTransport
	clock   clock.Clock
	timeout time.Duration
}

// NewDeadlineEnforcingPartTransport creates a decorator for
// PartTransport that limits the duration of every call.
//
// Calls that exceed the limit fail with DeadlineExceeded. As the
// limit applies to a single part, such failures are considered
// transient and may be retried by the caller. This is different from
// the context provided by the caller expiring, in which case the
// context's error is returned unmodified.
func NewDeadlineEnforcingPartTransport(base PartTransport, clock clock.Clock, timeout time.Duration) PartTransport {
	return &deadlineEnforcingPartTransport{
		base:    base,
		clock:   clock,
		timeout: timeout,
	}
}

func (pt *deadlineEnforcingPartTransport) convertError(ctx, ctxWithTimeout context.Context, err error) error {
	if err != nil && ctx.Err() == nil && ctxWithTimeout.Err() != nil {
		return util.StatusWrapfWithCode(err, codes.DeadlineExceeded, "Part transfer did not complete within %s", pt.timeout)
	}
	return err
}

func (pt *deadlineEnforcingPartTransport) Upload(ctx context.Context, data []byte) (string, error) {
	ctxWithTimeout, cancel := pt.clock.NewContextWithTimeout(ctx, pt.timeout)
	defer cancel()

	locator, err := pt.base.Upload(ctxWithTimeout, data)
	return locator, pt.convertError(ctx, ctxWithTimeout, err)
}

func (pt *deadlineEnforcingPartTransport) Download(ctx context.Context, locator string) ([]byte, error) {
	ctxWithTimeout, cancel := pt.clock.NewContextWithTimeout(ctx, pt.timeout)
	defer cancel()

	data, err := pt.base.Download(ctxWithTimeout, locator)
	return data, pt.convertError(ctx, ctxWithTimeout, err)
}

func (pt *deadlineEnforcingPartTransport) Delete(ctx context.Context, locator string) error {
	ctxWithTimeout, cancel := pt.clock.NewContextWithTimeout(ctx, pt.timeout)
	defer cancel()

	return pt.convertError(ctx, ctxWithTimeout, pt.base.Delete(ctxWithTimeout, locator))
}
