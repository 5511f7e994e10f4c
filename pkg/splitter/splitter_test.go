package splitter_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/buildbarn/bb-splitter/internal/mock"
	"github.com/buildbarn/bb-splitter/pkg/clock"
	"github.com/buildbarn/bb-splitter/pkg/digest"
	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/manifeststore"
	"github.com/buildbarn/bb-splitter/pkg/random"
	"github.com/buildbarn/bb-splitter/pkg/slicing"
	"github.com/buildbarn/bb-splitter/pkg/splitter"
	"github.com/buildbarn/bb-splitter/pkg/testutil"
	"github.com/buildbarn/bb-splitter/pkg/transfer"
	"github.com/buildbarn/bb-splitter/pkg/transport"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/mock/gomock"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var exampleContents = []byte("Pack my box with five dozen liquor jugs")

func newSplitterForTesting(partTransport transport.PartTransport, manifestStore manifeststore.ManifestStore) *splitter.Splitter {
	return splitter.NewSplitter(
		slicing.NewSlicer(digest.SHA256, uuid.NewRandom, clock.SystemClock),
		transfer.NewCoordinator(
			partTransport,
			/* concurrency = */ 1,
			/* maximumPartSizeBytes = */ 0,
			transfer.DefaultRetryPolicy,
			clock.SystemClock,
			random.FastThreadSafeGenerator,
			noop.NewTracerProvider(),
			util.DiscardingErrorLogger),
		manifestStore,
		/* partSizeBytes = */ 16)
}

func writeExampleFile(t *testing.T, name string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, exampleContents, 0o644))
	return path
}

func TestSplitterRoundTrip(t *testing.T) {
	ctx := context.Background()
	manifestStore := manifeststore.NewMemoryManifestStore()
	s := newSplitterForTesting(transport.NewMemoryPartTransport(uuid.NewRandom), manifestStore)
	path := writeExampleFile(t, "pangram.txt")

	m, err := s.Store(ctx, path, "alice")
	require.NoError(t, err)
	require.Equal(t, "pangram.txt", m.OriginalName)
	require.Equal(t, "txt", m.FileType)
	require.Equal(t, int64(len(exampleContents)), m.TotalSizeBytes)
	require.Len(t, m.Parts, 3)
	require.True(t, m.IsComplete())

	t.Run("List", func(t *testing.T) {
		summaries, err := s.List(ctx, manifeststore.Filter{Owner: "alice"})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		require.Equal(t, m.ID, summaries[0].ID)

		summaries, err = s.List(ctx, manifeststore.Filter{Owner: "bob"})
		require.NoError(t, err)
		require.Empty(t, summaries)
	})

	t.Run("StoreDuplicateName", func(t *testing.T) {
		// Names only need to be unique per owner.
		_, err := s.Store(ctx, path, "alice")
		testutil.RequireEqualStatus(t, status.Errorf(codes.AlreadyExists, "File already exists with identifier %#v", m.ID), err)

		other, err := s.Store(ctx, path, "bob")
		require.NoError(t, err)
		require.NotEqual(t, m.ID, other.ID)
	})

	t.Run("Retrieve", func(t *testing.T) {
		destination := t.TempDir()
		retrievedPath, err := s.Retrieve(ctx, m.ID, destination)
		require.NoError(t, err)
		require.Equal(t, filepath.Join(destination, "pangram.txt"), retrievedPath)
		contents, err := os.ReadFile(retrievedPath)
		require.NoError(t, err)
		require.Equal(t, exampleContents, contents)

		// Existing files should not be overwritten.
		_, err = s.Retrieve(ctx, m.ID, destination)
		testutil.RequireEqualStatus(t, status.Errorf(codes.AlreadyExists, "File %#v already exists", retrievedPath), err)
	})

	t.Run("Delete", func(t *testing.T) {
		remainingParts, err := s.Delete(ctx, m.ID)
		require.NoError(t, err)
		require.Equal(t, 0, remainingParts)

		_, err = s.Retrieve(ctx, m.ID, t.TempDir())
		require.Equal(t, codes.NotFound, status.Code(err))
		_, err = s.Delete(ctx, m.ID)
		require.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestSplitterStoreNotRegularFile(t *testing.T) {
	s := newSplitterForTesting(transport.NewMemoryPartTransport(uuid.NewRandom), manifeststore.NewMemoryManifestStore())
	directory := t.TempDir()

	_, err := s.Store(context.Background(), directory, "alice")
	testutil.RequireEqualStatus(t, status.Errorf(codes.InvalidArgument, "Path %#v does not refer to a regular file", directory), err)

	_, err = s.Store(context.Background(), filepath.Join(directory, "nonexistent"), "alice")
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSplitterStoreUploadFailure(t *testing.T) {
	ctrl, ctx := gomock.WithContext(context.Background(), t)

	partTransport := mock.NewMockPartTransport(ctrl)
	manifestStore := manifeststore.NewMemoryManifestStore()
	s := newSplitterForTesting(partTransport, manifestStore)
	path := writeExampleFile(t, "pangram.txt")

	// If the second part cannot be uploaded, no manifest should be
	// saved. The first part is retained, as parts are only removed
	// upon request.
	gomock.InOrder(
		partTransport.EXPECT().Upload(gomock.Any(), exampleContents[:16]).Return("locator-0", nil),
		partTransport.EXPECT().Upload(gomock.Any(), exampleContents[16:32]).
			Return("", status.Error(codes.PermissionDenied, "Bucket is read-only")),
	)

	m, err := s.Store(ctx, path, "alice")
	testutil.RequirePartFailure(t, codes.Unavailable, errorinfo.ReasonTransportFailure, 1, err)
	require.Equal(t, "locator-0", m.Parts[0].Locator)
	require.Equal(t, manifest.TransportStateFailed, m.Parts[1].State)

	summaries, err := manifestStore.List(ctx, manifeststore.Filter{})
	require.NoError(t, err)
	require.Empty(t, summaries)

	t.Run("Abandon", func(t *testing.T) {
		partTransport.EXPECT().Delete(gomock.Any(), "locator-0")

		remainingParts, err := s.Abandon(ctx, m)
		require.NoError(t, err)
		require.Equal(t, 0, remainingParts)
		require.Equal(t, 0, m.GetUploadedPartsCount())
	})
}

func TestSplitterStoreInterrupted(t *testing.T) {
	ctrl, ctx := gomock.WithContext(context.Background(), t)

	partTransport := mock.NewMockPartTransport(ctrl)
	manifestStore := manifeststore.NewMemoryManifestStore()
	s := newSplitterForTesting(partTransport, manifestStore)
	path := writeExampleFile(t, "pangram.txt")

	// Interrupt the upload while the second part is being
	// uploaded. The first part must not be removed.
	ctxWithCancel, cancel := context.WithCancel(ctx)
	gomock.InOrder(
		partTransport.EXPECT().Upload(gomock.Any(), exampleContents[:16]).Return("locator-0", nil),
		partTransport.EXPECT().Upload(gomock.Any(), exampleContents[16:32]).DoAndReturn(
			func(ctx context.Context, data []byte) (string, error) {
				cancel()
				return "", util.StatusFromContext(ctx)
			}),
	)

	m, err := s.Store(ctxWithCancel, path, "alice")
	require.Equal(t, codes.Canceled, status.Code(err))
	require.Equal(t, "locator-0", m.Parts[0].Locator)
	require.Equal(t, manifest.TransportStatePending, m.Parts[1].State)
	require.Equal(t, manifest.TransportStatePending, m.Parts[2].State)

	t.Run("ResumeModifiedFile", func(t *testing.T) {
		modifiedPath := filepath.Join(t.TempDir(), "pangram.txt")
		require.NoError(t, os.WriteFile(modifiedPath, exampleContents[:20], 0o644))

		err := s.Resume(ctx, m, modifiedPath)
		testutil.RequireEqualStatus(t, status.Errorf(codes.FailedPrecondition, "File %#v is 20 bytes in size, while manifest %#v describes a file of 39 bytes", modifiedPath, m.ID), err)
	})

	t.Run("Resume", func(t *testing.T) {
		// Only the parts that were not uploaded previously
		// should be uploaded.
		gomock.InOrder(
			partTransport.EXPECT().Upload(gomock.Any(), exampleContents[16:32]).Return("locator-1", nil),
			partTransport.EXPECT().Upload(gomock.Any(), exampleContents[32:]).Return("locator-2", nil),
		)

		require.NoError(t, s.Resume(ctx, m, path))
		require.True(t, m.IsComplete())

		stored, err := manifestStore.Load(ctx, m.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"locator-0", "locator-1", "locator-2"}, []string{
			stored.Parts[0].Locator,
			stored.Parts[1].Locator,
			stored.Parts[2].Locator,
		})
	})
}

func TestSplitterRetrieveCorrupted(t *testing.T) {
	ctrl, ctx := gomock.WithContext(context.Background(), t)

	partTransport := mock.NewMockPartTransport(ctrl)
	s := newSplitterForTesting(partTransport, manifeststore.NewMemoryManifestStore())
	path := writeExampleFile(t, "pangram.txt")

	for i, locator := range []string{"locator-0", "locator-1", "locator-2"} {
		partTransport.EXPECT().Upload(gomock.Any(), exampleContents[16*i:min(16*(i+1), len(exampleContents))]).Return(locator, nil)
	}
	m, err := s.Store(ctx, path, "alice")
	require.NoError(t, err)

	// A corrupted part should cause the download to fail without
	// leaving a partial file behind.
	partTransport.EXPECT().Download(gomock.Any(), "locator-0").Return(exampleContents[:16], nil)
	partTransport.EXPECT().Download(gomock.Any(), "locator-1").Return(bytes.ToUpper(exampleContents[16:32]), nil)
	partTransport.EXPECT().Download(gomock.Any(), "locator-2").Return(exampleContents[32:], nil).AnyTimes()

	destination := t.TempDir()
	_, err = s.Retrieve(ctx, m.ID, destination)
	testutil.RequirePartFailure(t, codes.DataLoss, errorinfo.ReasonCorruptPart, 1, err)

	entries, err := os.ReadDir(destination)
	require.NoError(t, err)
	require.Empty(t, entries)
}
