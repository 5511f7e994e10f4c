package configuration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buildbarn/bb-splitter/pkg/configuration"
	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/manifeststore"
	"github.com/buildbarn/bb-splitter/pkg/transfer"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.opentelemetry.io/otel/trace/noop"
)

func writeConfigurationFile(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "bb_splitter.jsonnet")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestGetApplicationConfiguration(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c, err := configuration.GetApplicationConfiguration(writeConfigurationFile(t, `{
			transport: { memory: {} },
			manifestStore: { memory: {} },
		}`))
		require.NoError(t, err)
		require.Equal(t, int64(manifest.DefaultPartSizeBytes), c.PartSizeBytes)
		require.Equal(t, configuration.DefaultConcurrency, c.Transfer.Concurrency)
		require.Nil(t, c.Transfer.Retry)
	})

	t.Run("Complete", func(t *testing.T) {
		c, err := configuration.GetApplicationConfiguration(writeConfigurationFile(t, `
			local partSizeMiB = 4;
			{
				global: {
					logging: { level: 'debug', format: 'json' },
					diagnosticsHttpServer: { listenAddress: ':9980', enablePrometheus: true },
				},
				transport: {
					s3: { bucket: 'parts', keyPrefix: 'splitter/', awsSession: { region: 'eu-west-1' } },
					compression: { algorithm: 'zstd', level: 5 },
					maximumCallDuration: '30s',
					maximumPartSizeBytes: 100 * 1024 * 1024,
				},
				manifestStore: { redis: { address: 'localhost:6379', keyPrefix: 'splitter:' } },
				partSizeBytes: partSizeMiB * 1024 * 1024,
				digestFunction: 'blake3',
				transfer: { concurrency: 8, retry: { maximumAttempts: 3, initialBackoff: '1s', jitter: 0 } },
				owner: 'alice',
			}`))
		require.NoError(t, err)
		require.Equal(t, int64(4*1024*1024), c.PartSizeBytes)
		require.Equal(t, "blake3", c.DigestFunction)
		require.Equal(t, "alice", c.Owner)
		require.Equal(t, "debug", c.Global.Logging.Level)
		require.Equal(t, "parts", c.Transport.S3.Bucket)
		require.Equal(t, "eu-west-1", c.Transport.S3.AWSSession.Region)
		require.Equal(t, util.Duration(30*time.Second), c.Transport.MaximumCallDuration)
		require.Equal(t, int64(100*1024*1024), c.Transport.MaximumPartSizeBytes)
		require.Equal(t, "localhost:6379", c.ManifestStore.Redis.Address)
		require.Equal(t, 8, c.Transfer.Concurrency)

		retryPolicy, err := configuration.NewRetryPolicyFromConfiguration(c.Transfer.Retry)
		require.NoError(t, err)
		require.Equal(t, transfer.RetryPolicy{
			MaximumAttempts: 3,
			InitialBackoff:  time.Second,
			MaximumBackoff:  transfer.DefaultRetryPolicy.MaximumBackoff,
			Multiplier:      transfer.DefaultRetryPolicy.Multiplier,
			Jitter:          0,
		}, retryPolicy)
	})

	t.Run("UnknownField", func(t *testing.T) {
		// Typos in configuration files should not go unnoticed.
		_, err := configuration.GetApplicationConfiguration(writeConfigurationFile(t, `{
			transport: { memory: {} },
			manifestStore: { memory: {} },
			partSize: 1024,
		}`))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("MissingTransport", func(t *testing.T) {
		path := writeConfigurationFile(t, `{ manifestStore: { memory: {} } }`)
		_, err := configuration.GetApplicationConfiguration(path)
		require.Equal(t, status.Errorf(codes.InvalidArgument, "Invalid configuration in %#v: No transport configured", path).Error(), err.Error())
	})

	t.Run("UnknownDigestFunction", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfigurationFile(t, `{
			transport: { memory: {} },
			manifestStore: { memory: {} },
			digestFunction: 'md5',
		}`))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("NegativePartSize", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfigurationFile(t, `{
			transport: { memory: {} },
			manifestStore: { memory: {} },
			partSizeBytes: -1,
		}`))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("PartSizeExceedsTransportLimit", func(t *testing.T) {
		// The default part size of 8 MiB is also subject to the
		// limit of the transport.
		path := writeConfigurationFile(t, `{
			transport: { memory: {}, maximumPartSizeBytes: 1048576 },
			manifestStore: { memory: {} },
		}`)
		_, err := configuration.GetApplicationConfiguration(path)
		require.Equal(t, status.Errorf(codes.InvalidArgument, "Invalid configuration in %#v: Part size of 8388608 bytes exceeds the maximum part size of 1048576 bytes accepted by the transport", path).Error(), err.Error())

		c, err := configuration.GetApplicationConfiguration(writeConfigurationFile(t, `{
			transport: { memory: {}, maximumPartSizeBytes: 1048576 },
			manifestStore: { memory: {} },
			partSizeBytes: 1048576,
		}`))
		require.NoError(t, err)
		require.Equal(t, int64(1048576), c.PartSizeBytes)
	})

	t.Run("MalformedDuration", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfigurationFile(t, `{
			transport: { memory: {}, maximumCallDuration: 'soon' },
			manifestStore: { memory: {} },
		}`))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestNewRetryPolicyFromConfiguration(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		retryPolicy, err := configuration.NewRetryPolicyFromConfiguration(nil)
		require.NoError(t, err)
		require.Equal(t, transfer.DefaultRetryPolicy, retryPolicy)
	})

	t.Run("Invalid", func(t *testing.T) {
		jitter := 1.5
		_, err := configuration.NewRetryPolicyFromConfiguration(&configuration.RetryConfiguration{
			Jitter: &jitter,
		})
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestNewSplitterFromConfiguration(t *testing.T) {
	ctx := context.Background()
	directory := t.TempDir()
	partsDirectory := filepath.Join(directory, "parts")
	manifestsDirectory := filepath.Join(directory, "manifests")
	require.NoError(t, os.Mkdir(partsDirectory, 0o755))
	require.NoError(t, os.Mkdir(manifestsDirectory, 0o755))
	jitter := 0.0

	s, err := configuration.NewSplitterFromConfiguration(ctx, &configuration.ApplicationConfiguration{
		Transport: &configuration.PartTransportConfiguration{
			Local:       &configuration.LocalPartTransportConfiguration{Directory: partsDirectory},
			Compression: &configuration.CompressionConfiguration{Algorithm: "s2"},
		},
		ManifestStore: &configuration.ManifestStoreConfiguration{
			Local:           &configuration.LocalManifestStoreConfiguration{Directory: manifestsDirectory},
			RestrictToOwner: true,
		},
		PartSizeBytes:  10,
		DigestFunction: "sha256tree",
		Transfer: &configuration.TransferConfiguration{
			Concurrency: 2,
			Retry:       &configuration.RetryConfiguration{Jitter: &jitter},
		},
		Owner: "alice",
	}, noop.NewTracerProvider())
	require.NoError(t, err)

	// Store a file and retrieve it, going through the local part
	// transport and manifest store.
	sourcePath := filepath.Join(directory, "report.csv")
	contents := []byte("date,amount\n2026-10-19,100\n2026-10-20,250\n")
	require.NoError(t, os.WriteFile(sourcePath, contents, 0o644))
	m, err := s.Store(ctx, sourcePath, "alice")
	require.NoError(t, err)
	require.Len(t, m.Parts, 5)

	entries, err := os.ReadDir(partsDirectory)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	summaries, err := s.List(ctx, manifeststore.Filter{})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "report.csv", summaries[0].OriginalName)

	retrievedPath, err := s.Retrieve(ctx, m.ID, t.TempDir())
	require.NoError(t, err)
	retrieved, err := os.ReadFile(retrievedPath)
	require.NoError(t, err)
	require.Equal(t, contents, retrieved)

	// Files of other owners may not be stored.
	_, err = s.Store(ctx, sourcePath, "bob")
	require.Equal(t, codes.PermissionDenied, status.Code(err))
}
