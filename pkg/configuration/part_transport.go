package configuration

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cloud_aws "github.com/buildbarn/bb-splitter/pkg/cloud/aws"
	"github.com/buildbarn/bb-splitter/pkg/cloud/gcp"
	"github.com/buildbarn/bb-splitter/pkg/clock"
	"github.com/buildbarn/bb-splitter/pkg/transport"
	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// defaultMaximumDecodedPartSizeBytes bounds the size of decompressed
// parts if no maximum part size is configured.
const defaultMaximumDecodedPartSizeBytes = 1 << 30

// PartTransportConfiguration describes where parts are stored. Exactly
// one of the backends must be configured.
type PartTransportConfiguration struct {
	Memory *struct{}                        `json:"memory"`
	Local  *LocalPartTransportConfiguration `json:"local"`
	S3     *S3PartTransportConfiguration    `json:"s3"`
	GCS    *GCSPartTransportConfiguration   `json:"gcs"`

	// Compress parts before storing them.
	Compression *CompressionConfiguration `json:"compression"`
	// Maximum amount of time a single call against the backend
	// may take. Zero means no limit.
	MaximumCallDuration util.Duration `json:"maximumCallDuration"`
	// Maximum size of a part accepted by the backend. Parts that
	// are larger are rejected before they are uploaded. Zero means
	// no limit.
	MaximumPartSizeBytes int64 `json:"maximumPartSizeBytes"`
}

// LocalPartTransportConfiguration stores parts as files in a directory.
type LocalPartTransportConfiguration struct {
	Directory string `json:"directory"`
}

// S3PartTransportConfiguration stores parts as objects in an S3 bucket.
type S3PartTransportConfiguration struct {
	AWSSession *cloud_aws.SessionConfiguration `json:"awsSession"`
	// Endpoint of an S3 compatible service, such as MinIO. When
	// set, path style addressing is used.
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	KeyPrefix string `json:"keyPrefix"`
}

// GCSPartTransportConfiguration stores parts as objects in a Google
// Cloud Storage bucket.
type GCSPartTransportConfiguration struct {
	ClientOptions *gcp.ClientOptionsConfiguration `json:"clientOptions"`
	Bucket        string                          `json:"bucket"`
	KeyPrefix     string                          `json:"keyPrefix"`
}

// CompressionConfiguration selects the codec with which parts are
// compressed.
type CompressionConfiguration struct {
	// Either "zstd" or "s2".
	Algorithm string `json:"algorithm"`
	// Zstandard compression level. Defaults to 3.
	Level int `json:"level"`
}

func countBackends(backends ...bool) int {
	count := 0
	for _, configured := range backends {
		if configured {
			count++
		}
	}
	return count
}

// NewPartTransportFromConfiguration creates a PartTransport based on
// options specified in a configuration message. The backend is
// decorated to expose Prometheus metrics, and to apply compression and
// call durations, if configured.
func NewPartTransportFromConfiguration(ctx context.Context, configuration *PartTransportConfiguration, uuidGenerator util.UUIDGenerator) (transport.PartTransport, error) {
	if configuration == nil {
		return nil, status.Error(codes.InvalidArgument, "Part transport configuration not specified")
	}
	if countBackends(configuration.Memory != nil, configuration.Local != nil, configuration.S3 != nil, configuration.GCS != nil) != 1 {
		return nil, status.Error(codes.InvalidArgument, "Part transport configuration must contain exactly one backend")
	}

	var partTransport transport.PartTransport
	var backendType string
	switch {
	case configuration.Memory != nil:
		partTransport = transport.NewMemoryPartTransport(uuidGenerator)
		backendType = "memory"
	case configuration.Local != nil:
		if configuration.Local.Directory == "" {
			return nil, status.Error(codes.InvalidArgument, "No directory specified for local part transport")
		}
		partTransport = transport.NewLocalPartTransport(configuration.Local.Directory, uuidGenerator)
		backendType = "local"
	case configuration.S3 != nil:
		s3Configuration := configuration.S3
		if s3Configuration.Bucket == "" {
			return nil, status.Error(codes.InvalidArgument, "No bucket specified for S3 part transport")
		}
		cfg, err := cloud_aws.NewConfigFromConfiguration(ctx, s3Configuration.AWSSession)
		if err != nil {
			return nil, util.StatusWrap(err, "Failed to create AWS config")
		}
		s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			if endpoint := s3Configuration.Endpoint; endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})
		partTransport = transport.NewS3PartTransport(s3Client, s3Configuration.Bucket, s3Configuration.KeyPrefix, uuidGenerator)
		backendType = "s3"
	case configuration.GCS != nil:
		gcsConfiguration := configuration.GCS
		if gcsConfiguration.Bucket == "" {
			return nil, status.Error(codes.InvalidArgument, "No bucket specified for GCS part transport")
		}
		storageClient, err := storage.NewClient(ctx, gcp.NewClientOptionsFromConfiguration(gcsConfiguration.ClientOptions)...)
		if err != nil {
			return nil, util.StatusWrapWithCode(err, codes.Internal, "Failed to create GCS client")
		}
		bucket := gcp.NewWrappedStorageClient(storageClient).Bucket(gcsConfiguration.Bucket)
		partTransport = transport.NewGCSPartTransport(bucket, gcsConfiguration.KeyPrefix, uuidGenerator)
		backendType = "gcs"
	}
	partTransport = transport.NewMetricsPartTransport(partTransport, clock.SystemClock, backendType)

	if compression := configuration.Compression; compression != nil {
		maximumDecodedSizeBytes := configuration.MaximumPartSizeBytes
		if maximumDecodedSizeBytes == 0 {
			maximumDecodedSizeBytes = defaultMaximumDecodedPartSizeBytes
		}
		codec, err := newCodecFromConfiguration(compression, maximumDecodedSizeBytes)
		if err != nil {
			return nil, util.StatusWrap(err, "Failed to create compression codec")
		}
		partTransport = transport.NewCompressingPartTransport(partTransport, codec)
	}

	if maximumCallDuration := time.Duration(configuration.MaximumCallDuration); maximumCallDuration > 0 {
		partTransport = transport.NewDeadlineEnforcingPartTransport(partTransport, clock.SystemClock, maximumCallDuration)
	} else if maximumCallDuration < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Maximum call duration must be positive, while %s was provided", maximumCallDuration)
	}
	return partTransport, nil
}

func newCodecFromConfiguration(configuration *CompressionConfiguration, maximumDecodedSizeBytes int64) (transport.Codec, error) {
	switch configuration.Algorithm {
	case "zstd":
		level := configuration.Level
		if level == 0 {
			level = 3
		}
		return transport.NewZstdCodec(level, maximumDecodedSizeBytes)
	case "s2":
		return transport.NewS2Codec(maximumDecodedSizeBytes), nil
	default:
		return nil, status.Errorf(codes.InvalidArgument, "Unknown compression algorithm %#v", configuration.Algorithm)
	}
}
