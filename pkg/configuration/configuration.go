// Package configuration contains the structure of the configuration
// file of bb_splitter, and factories that construct the components
// described by it.
package configuration

import (
	"github.com/buildbarn/bb-splitter/pkg/digest"
	"github.com/buildbarn/bb-splitter/pkg/global"
	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ApplicationConfiguration is the top-level configuration of
// bb_splitter.
type ApplicationConfiguration struct {
	Global        *global.Configuration       `json:"global"`
	Transport     *PartTransportConfiguration `json:"transport"`
	ManifestStore *ManifestStoreConfiguration `json:"manifestStore"`
	// Size of the parts into which files are sliced. Defaults to
	// 8 MiB.
	PartSizeBytes int64 `json:"partSizeBytes"`
	// Hashing algorithm used to compute checksums of parts and
	// whole files. Defaults to "sha256".
	DigestFunction string                 `json:"digestFunction"`
	Transfer       *TransferConfiguration `json:"transfer"`
	// Owner recorded in manifests of files that are stored. It is
	// also used to restrict access to manifests, if enabled.
	Owner string `json:"owner"`
}

// GetApplicationConfiguration reads the configuration of bb_splitter
// from a Jsonnet file, and fills in default values.
func GetApplicationConfiguration(path string) (*ApplicationConfiguration, error) {
	var configuration ApplicationConfiguration
	if err := util.UnmarshalConfigurationFromFile(path, &configuration); err != nil {
		return nil, util.StatusWrapf(err, "Failed to read configuration from %#v", path)
	}
	if err := setDefaultValues(&configuration); err != nil {
		return nil, util.StatusWrapf(err, "Invalid configuration in %#v", path)
	}
	return &configuration, nil
}

func setDefaultValues(configuration *ApplicationConfiguration) error {
	if configuration.PartSizeBytes == 0 {
		configuration.PartSizeBytes = manifest.DefaultPartSizeBytes
	} else if configuration.PartSizeBytes < 0 {
		return status.Errorf(codes.InvalidArgument, "Part size must be positive, while %d bytes was provided", configuration.PartSizeBytes)
	}
	if _, err := digest.GetFunction(configuration.DigestFunction); err != nil {
		return err
	}
	if configuration.Transport == nil {
		return status.Error(codes.InvalidArgument, "No transport configured")
	}
	if maximumPartSizeBytes := configuration.Transport.MaximumPartSizeBytes; maximumPartSizeBytes > 0 && configuration.PartSizeBytes > maximumPartSizeBytes {
		return status.Errorf(codes.InvalidArgument, "Part size of %d bytes exceeds the maximum part size of %d bytes accepted by the transport", configuration.PartSizeBytes, maximumPartSizeBytes)
	}
	if configuration.ManifestStore == nil {
		return status.Error(codes.InvalidArgument, "No manifest store configured")
	}
	if configuration.Transfer == nil {
		configuration.Transfer = &TransferConfiguration{}
	}
	if configuration.Transfer.Concurrency == 0 {
		configuration.Transfer.Concurrency = DefaultConcurrency
	} else if configuration.Transfer.Concurrency < 0 {
		return status.Errorf(codes.InvalidArgument, "Concurrency must be positive, while %d was provided", configuration.Transfer.Concurrency)
	}
	return nil
}
