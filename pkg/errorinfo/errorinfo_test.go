package errorinfo_test

import (
	"testing"

	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCorruptPartError(t *testing.T) {
	err := errorinfo.NewCorruptPartError(7, "Checksum mismatch")
	require.Equal(t, codes.DataLoss, status.Code(err))
	require.Equal(t, errorinfo.ReasonCorruptPart, errorinfo.GetReason(err))
	require.True(t, errorinfo.IsIntegrityFailure(err))

	index, ok := errorinfo.GetPartIndex(err)
	require.True(t, ok)
	require.Equal(t, 7, index)

	t.Run("Wrapped", func(t *testing.T) {
		// Details must survive additional context being added
		// to the message.
		wrapped := util.StatusWrapf(err, "Failed to reassemble manifest %#v", "d4c2")
		require.Equal(t, "Failed to reassemble manifest \"d4c2\": Checksum mismatch", status.Convert(wrapped).Message())
		require.Equal(t, errorinfo.ReasonCorruptPart, errorinfo.GetReason(wrapped))
		index, ok := errorinfo.GetPartIndex(wrapped)
		require.True(t, ok)
		require.Equal(t, 7, index)
	})
}

func TestTransferInProgressError(t *testing.T) {
	err := errorinfo.NewTransferInProgressError("9a1e")
	require.Equal(t, codes.Aborted, status.Code(err))
	require.Equal(t, errorinfo.ReasonTransferInProgress, errorinfo.GetReason(err))
	manifestID, ok := errorinfo.GetManifestID(err)
	require.True(t, ok)
	require.Equal(t, "9a1e", manifestID)
	_, ok = errorinfo.GetPartIndex(err)
	require.False(t, ok)
}

func TestTransportFailureError(t *testing.T) {
	err := errorinfo.NewTransportFailureError(2, status.Error(codes.Internal, "Connection reset by peer"))
	require.Equal(t, codes.Unavailable, status.Code(err))
	require.Equal(t, "Connection reset by peer", status.Convert(err).Message())
	require.False(t, errorinfo.IsIntegrityFailure(err))
}

func TestPlainErrors(t *testing.T) {
	require.Equal(t, errorinfo.ReasonNone, errorinfo.GetReason(nil))
	require.Equal(t, errorinfo.ReasonNone, errorinfo.GetReason(status.Error(codes.DataLoss, "Disk on fire")))
	_, ok := errorinfo.GetPartIndex(status.Error(codes.DataLoss, "Disk on fire"))
	require.False(t, ok)
}
