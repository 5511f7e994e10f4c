package transfer_test

import (
	"testing"
	"time"

	"github.com/buildbarn/bb-splitter/internal/mock"
	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/buildbarn/bb-splitter/pkg/testutil"
	"github.com/buildbarn/bb-splitter/pkg/transfer"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRetryPolicyGetBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)

	randomGenerator := mock.NewMockThreadSafeGenerator(ctrl)
	policy := transfer.RetryPolicy{
		MaximumAttempts: 10,
		InitialBackoff:  100 * time.Millisecond,
		MaximumBackoff:  time.Second,
		Multiplier:      2,
	}

	t.Run("WithoutJitter", func(t *testing.T) {
		require.Equal(t, 100*time.Millisecond, policy.GetBackoff(1, randomGenerator))
		require.Equal(t, 200*time.Millisecond, policy.GetBackoff(2, randomGenerator))
		require.Equal(t, 400*time.Millisecond, policy.GetBackoff(3, randomGenerator))
		require.Equal(t, 800*time.Millisecond, policy.GetBackoff(4, randomGenerator))
		require.Equal(t, time.Second, policy.GetBackoff(5, randomGenerator))
		require.Equal(t, time.Second, policy.GetBackoff(100, randomGenerator))
	})

	t.Run("WithJitter", func(t *testing.T) {
		policy := policy
		policy.Jitter = 0.5

		randomGenerator.EXPECT().Float64().Return(0.0)
		require.Equal(t, 50*time.Millisecond, policy.GetBackoff(1, randomGenerator))
		randomGenerator.EXPECT().Float64().Return(0.5)
		require.Equal(t, 200*time.Millisecond, policy.GetBackoff(2, randomGenerator))
		randomGenerator.EXPECT().Float64().Return(0.75)
		require.Equal(t, 1250*time.Millisecond, policy.GetBackoff(5, randomGenerator))
	})
}

func TestRetryPolicyValidate(t *testing.T) {
	require.NoError(t, transfer.DefaultRetryPolicy.Validate())

	for name, policy := range map[string]transfer.RetryPolicy{
		"NoAttempts":       {MaximumAttempts: 0, Multiplier: 1},
		"NegativeBackoff":  {MaximumAttempts: 1, InitialBackoff: -1, Multiplier: 1},
		"InvertedBackoff":  {MaximumAttempts: 1, InitialBackoff: time.Second, MaximumBackoff: time.Millisecond, Multiplier: 1},
		"ShrinkingBackoff": {MaximumAttempts: 1, Multiplier: 0.5},
		"ExcessiveJitter":  {MaximumAttempts: 1, Multiplier: 1, Jitter: 1.5},
	} {
		t.Run(name, func(t *testing.T) {
			testutil.RequireReason(t, codes.InvalidArgument, errorinfo.ReasonInvalidInput, policy.Validate())
		})
	}
}

func TestIsTransientError(t *testing.T) {
	require.True(t, transfer.IsTransientError(status.Error(codes.Unavailable, "Server offline")))
	require.True(t, transfer.IsTransientError(status.Error(codes.DeadlineExceeded, "Part transfer did not complete within 1m0s")))
	require.True(t, transfer.IsTransientError(status.Error(codes.Internal, "Connection reset by peer")))

	require.False(t, transfer.IsTransientError(status.Error(codes.InvalidArgument, "Invalid locator")))
	require.False(t, transfer.IsTransientError(status.Error(codes.NotFound, "Object not found")))
	require.False(t, transfer.IsTransientError(status.Error(codes.PermissionDenied, "Access denied")))
	require.False(t, transfer.IsTransientError(status.Error(codes.DataLoss, "Failed to decompress Zstandard data")))
	require.False(t, transfer.IsTransientError(errorinfo.NewCorruptPartError(3, "Part 3 has a bad checksum")))
	require.False(t, transfer.IsTransientError(errorinfo.NewTransportFailureError(3, status.Error(codes.Unavailable, "Server offline"))))
}
