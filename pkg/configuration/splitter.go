package configuration

import (
	"context"

	"github.com/buildbarn/bb-splitter/pkg/clock"
	"github.com/buildbarn/bb-splitter/pkg/digest"
	"github.com/buildbarn/bb-splitter/pkg/random"
	"github.com/buildbarn/bb-splitter/pkg/slicing"
	"github.com/buildbarn/bb-splitter/pkg/splitter"
	"github.com/buildbarn/bb-splitter/pkg/transfer"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/google/uuid"

	"go.opentelemetry.io/otel/trace"
)

// NewSplitterFromConfiguration creates a Splitter, including its part
// transport and manifest store, based on the options specified in the
// application configuration. Default values must already have been
// filled in.
func NewSplitterFromConfiguration(ctx context.Context, configuration *ApplicationConfiguration, tracerProvider trace.TracerProvider) (*splitter.Splitter, error) {
	digestFunction, err := digest.GetFunction(configuration.DigestFunction)
	if err != nil {
		return nil, err
	}
	partTransport, err := NewPartTransportFromConfiguration(ctx, configuration.Transport, uuid.NewRandom)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to create part transport")
	}
	manifestStore, err := NewManifestStoreFromConfiguration(configuration.ManifestStore, configuration.Owner)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to create manifest store")
	}
	retryPolicy, err := NewRetryPolicyFromConfiguration(configuration.Transfer.Retry)
	if err != nil {
		return nil, err
	}
	return splitter.NewSplitter(
		slicing.NewSlicer(digestFunction, uuid.NewRandom, clock.SystemClock),
		transfer.NewCoordinator(
			partTransport,
			configuration.Transfer.Concurrency,
			configuration.Transport.MaximumPartSizeBytes,
			retryPolicy,
			clock.SystemClock,
			random.FastThreadSafeGenerator,
			tracerProvider,
			util.DefaultErrorLogger),
		manifestStore,
		configuration.PartSizeBytes), nil
}
