package manifeststore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/buildbarn/bb-splitter/pkg/manifeststore"
	"github.com/buildbarn/bb-splitter/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLocalManifestStore(t *testing.T) {
	ctx := context.Background()
	directory := t.TempDir()
	manifestStore := manifeststore.NewLocalManifestStore(directory)

	t.Run("InvalidIdentifier", func(t *testing.T) {
		// Identifiers may not be used to access files outside
		// the directory.
		_, err := manifestStore.Load(ctx, "../../etc/passwd")
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Invalid manifest identifier \"../../etc/passwd\""), err)

		m := newUploadedManifest("Hello", "notes.txt", "alice")
		_, err = manifestStore.Save(ctx, m)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Invalid manifest identifier \"Hello\""), err)
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		_, err := manifestStore.Load(ctx, exampleID1)
		testutil.RequireEqualStatus(t, status.Errorf(codes.NotFound, "Manifest %#v not found", exampleID1), err)
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		id, err := manifestStore.Save(ctx, newUploadedManifest(exampleID1, "notes.txt", "alice"))
		require.NoError(t, err)
		require.Equal(t, exampleID1, id)

		require.FileExists(t, filepath.Join(directory, exampleID1+".json"))
		require.NoFileExists(t, filepath.Join(directory, exampleID1+".json.tmp"))

		loaded, err := manifestStore.Load(ctx, exampleID1)
		require.NoError(t, err)
		require.Equal(t, newUploadedManifest(exampleID1, "notes.txt", "alice"), loaded)
	})

	t.Run("LoadMalformed", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(directory, exampleID3+".json"), []byte("Hello"), 0o644))
		_, err := manifestStore.Load(ctx, exampleID3)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
		require.NoError(t, os.Remove(filepath.Join(directory, exampleID3+".json")))
	})

	t.Run("List", func(t *testing.T) {
		_, err := manifestStore.Save(ctx, newUploadedManifest(exampleID2, "archive.tar", "bob"))
		require.NoError(t, err)

		// Files that were not created by the manifest store
		// should be ignored.
		require.NoError(t, os.WriteFile(filepath.Join(directory, "README.txt"), []byte("Hello"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(directory, "settings.json"), []byte("{}"), 0o644))
		require.NoError(t, os.Mkdir(filepath.Join(directory, exampleID3+".json"), 0o755))

		summaries, err := manifestStore.List(ctx, manifeststore.Filter{})
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		require.Equal(t, exampleID2, summaries[0].ID)
		require.Equal(t, exampleID1, summaries[1].ID)

		summaries, err = manifestStore.List(ctx, manifeststore.Filter{Owner: "bob"})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		require.Equal(t, "archive.tar", summaries[0].OriginalName)
	})

	t.Run("ListDirectoryMissing", func(t *testing.T) {
		_, err := manifeststore.NewLocalManifestStore(filepath.Join(directory, "nonexistent")).List(ctx, manifeststore.Filter{})
		require.Equal(t, codes.Unavailable, status.Code(err))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, manifestStore.Delete(ctx, exampleID1))
		require.NoFileExists(t, filepath.Join(directory, exampleID1+".json"))
		testutil.RequireEqualStatus(
			t,
			status.Errorf(codes.NotFound, "Manifest %#v not found", exampleID1),
			manifestStore.Delete(ctx, exampleID1))
	})
}
