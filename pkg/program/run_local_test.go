package program_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/buildbarn/bb-splitter/pkg/program"
	"github.com/buildbarn/bb-splitter/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRunLocal(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Dependencies should only be canceled after the
		// routine and all of its siblings have completed.
		var siblingsCompleted atomic.Int32
		var dependencyObservedSiblings atomic.Int32
		require.NoError(t, program.RunLocal(context.Background(), func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			dependenciesGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				<-ctx.Done()
				dependencyObservedSiblings.Store(siblingsCompleted.Load())
				return nil
			})
			siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				siblingsCompleted.Add(1)
				return nil
			})
			siblingsCompleted.Add(1)
			return nil
		}))
		require.Equal(t, int32(2), dependencyObservedSiblings.Load())
	})

	t.Run("Failure", func(t *testing.T) {
		// The first error should be returned, and cause all
		// other routines to be canceled.
		err := program.RunLocal(context.Background(), func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				<-ctx.Done()
				return status.Error(codes.Canceled, "Sibling canceled")
			})
			return status.Error(codes.Internal, "Transfer failed")
		})
		testutil.RequireEqualStatus(t, status.Error(codes.Internal, "Transfer failed"), err)
	})

	t.Run("ParentCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, program.RunLocal(ctx, func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			<-ctx.Done()
			return nil
		}))
	})
}
