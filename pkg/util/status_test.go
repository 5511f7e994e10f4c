package util_test

import (
	"context"
	"testing"

	"github.com/buildbarn/bb-splitter/pkg/testutil"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusWrap(t *testing.T) {
	testutil.RequireEqualStatus(
		t,
		status.Error(codes.Unavailable, "Failed to upload part 3: Connection reset"),
		util.StatusWrapf(status.Error(codes.Unavailable, "Connection reset"), "Failed to upload part %d", 3))
	testutil.RequireEqualStatus(
		t,
		status.Error(codes.DataLoss, "Part is corrupt: Checksum mismatch"),
		util.StatusWrapWithCode(status.Error(codes.Internal, "Checksum mismatch"), codes.DataLoss, "Part is corrupt"))
}

func TestStatusFromContext(t *testing.T) {
	require.NoError(t, util.StatusFromContext(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, status.Error(codes.Canceled, "context canceled"), util.StatusFromContext(ctx))
	require.True(t, util.IsContextError(ctx, util.StatusFromContext(ctx)))
	require.False(t, util.IsContextError(context.Background(), status.Error(codes.Canceled, "context canceled")))
}
