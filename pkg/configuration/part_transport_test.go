package configuration_test

import (
	"context"
	"testing"

	"github.com/buildbarn/bb-splitter/pkg/configuration"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewPartTransportFromConfiguration(t *testing.T) {
	ctx := context.Background()

	t.Run("NoConfiguration", func(t *testing.T) {
		_, err := configuration.NewPartTransportFromConfiguration(ctx, nil, uuid.NewRandom)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("NoBackend", func(t *testing.T) {
		_, err := configuration.NewPartTransportFromConfiguration(ctx, &configuration.PartTransportConfiguration{}, uuid.NewRandom)
		require.Equal(t, status.Error(codes.InvalidArgument, "Part transport configuration must contain exactly one backend").Error(), err.Error())
	})

	t.Run("MultipleBackends", func(t *testing.T) {
		_, err := configuration.NewPartTransportFromConfiguration(ctx, &configuration.PartTransportConfiguration{
			Memory: &struct{}{},
			Local:  &configuration.LocalPartTransportConfiguration{Directory: t.TempDir()},
		}, uuid.NewRandom)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("LocalWithoutDirectory", func(t *testing.T) {
		_, err := configuration.NewPartTransportFromConfiguration(ctx, &configuration.PartTransportConfiguration{
			Local: &configuration.LocalPartTransportConfiguration{},
		}, uuid.NewRandom)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("S3WithoutBucket", func(t *testing.T) {
		_, err := configuration.NewPartTransportFromConfiguration(ctx, &configuration.PartTransportConfiguration{
			S3: &configuration.S3PartTransportConfiguration{},
		}, uuid.NewRandom)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("UnknownCompressionAlgorithm", func(t *testing.T) {
		_, err := configuration.NewPartTransportFromConfiguration(ctx, &configuration.PartTransportConfiguration{
			Memory:      &struct{}{},
			Compression: &configuration.CompressionConfiguration{Algorithm: "lzma"},
		}, uuid.NewRandom)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("NegativeCallDuration", func(t *testing.T) {
		_, err := configuration.NewPartTransportFromConfiguration(ctx, &configuration.PartTransportConfiguration{
			Memory:              &struct{}{},
			MaximumCallDuration: util.Duration(-1),
		}, uuid.NewRandom)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	for _, algorithm := range []string{"zstd", "s2"} {
		t.Run("Compression_"+algorithm, func(t *testing.T) {
			partTransport, err := configuration.NewPartTransportFromConfiguration(ctx, &configuration.PartTransportConfiguration{
				Memory:               &struct{}{},
				Compression:          &configuration.CompressionConfiguration{Algorithm: algorithm},
				MaximumCallDuration:  util.Duration(60e9),
				MaximumPartSizeBytes: 1 << 20,
			}, uuid.NewRandom)
			require.NoError(t, err)

			data := []byte("Lorem ipsum dolor sit amet, lorem ipsum dolor sit amet")
			locator, err := partTransport.Upload(ctx, data)
			require.NoError(t, err)
			downloaded, err := partTransport.Download(ctx, locator)
			require.NoError(t, err)
			require.Equal(t, data, downloaded)
			require.NoError(t, partTransport.Delete(ctx, locator))
		})
	}
}
