package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/buildbarn/bb-splitter/internal/mock"
	"github.com/buildbarn/bb-splitter/pkg/testutil"
	"github.com/buildbarn/bb-splitter/pkg/transport"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDeadlineEnforcingPartTransport(t *testing.T) {
	ctrl, ctx := gomock.WithContext(context.Background(), t)

	base := mock.NewMockPartTransport(ctrl)
	clock := mock.NewMockClock(ctrl)
	partTransport := transport.NewDeadlineEnforcingPartTransport(base, clock, time.Minute)

	t.Run("Success", func(t *testing.T) {
		ctxWithTimeout, cancel := context.WithCancel(ctx)
		clock.EXPECT().NewContextWithTimeout(ctx, time.Minute).Return(ctxWithTimeout, cancel)
		base.EXPECT().Upload(ctxWithTimeout, []byte("Hello")).Return("locator", nil)

		locator, err := partTransport.Upload(ctx, []byte("Hello"))
		require.NoError(t, err)
		require.Equal(t, "locator", locator)
		require.Error(t, ctxWithTimeout.Err())
	})

	t.Run("Timeout", func(t *testing.T) {
		ctxWithTimeout, cancel := context.WithDeadline(ctx, time.Unix(1000, 0))
		clock.EXPECT().NewContextWithTimeout(ctx, time.Minute).Return(ctxWithTimeout, cancel)
		base.EXPECT().Download(ctxWithTimeout, "locator").Return(nil, status.Error(codes.DeadlineExceeded, "context deadline exceeded"))

		_, err := partTransport.Download(ctx, "locator")
		testutil.RequireEqualStatus(t, status.Error(codes.DeadlineExceeded, "Part transfer did not complete within 1m0s: context deadline exceeded"), err)
	})

	t.Run("ParentCanceled", func(t *testing.T) {
		// Cancelation by the caller must not be reported as a
		// per-part timeout.
		parentCtx, parentCancel := context.WithCancel(ctx)
		parentCancel()
		ctxWithTimeout, cancel := context.WithCancel(parentCtx)
		clock.EXPECT().NewContextWithTimeout(parentCtx, time.Minute).Return(ctxWithTimeout, cancel)
		base.EXPECT().Delete(ctxWithTimeout, "locator").Return(status.Error(codes.Canceled, "context canceled"))

		testutil.RequireEqualStatus(
			t,
			status.Error(codes.Canceled, "context canceled"),
			partTransport.Delete(parentCtx, "locator"))
	})
}
