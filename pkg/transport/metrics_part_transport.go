package transport

import (
	"context"
	"time"

	"github.com/buildbarn/bb-splitter/pkg/clock"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/prometheus/client_golang/prometheus"

	"google.golang.org/grpc/status"
)

var (
	partTransportOperationsDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "splitter",
			Name:      "part_transport_operations_duration_seconds",
			Help:      "Amount of time spent per operation on part transports, in seconds.",
			Buckets:   util.DecimalExponentialBuckets(-3, 6, 2),
		},
		[]string{"name", "operation", "grpc_code"})
	partTransportOperationsSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "splitter",
			Name:      "part_transport_operations_size_bytes",
			Help:      "Size of parts transferred by part transports, in bytes.",
			Buckets:   util.PartSizeBuckets(),
		},
		[]string{"name", "operation"})
)

func init() {
	prometheus.MustRegister(partTransportOperationsDurationSeconds)
	prometheus.MustRegister(partTransportOperationsSizeBytes)
}

type metricsPartTransport struct {
	base  PartTransport
	name  string
	clock clock.Clock

	uploadSizeBytes   prometheus.Observer
	downloadSizeBytes prometheus.Observer
}

// NewMetricsPartTransport creates a decorator for PartTransport that
// exposes the duration of calls and the size of the parts that are
// transferred as Prometheus metrics.
func NewMetricsPartTransport(base PartTransport, clock clock.Clock, name string) PartTransport {
	return &metricsPartTransport{
		base:  base,
		name:  name,
		clock: clock,

		uploadSizeBytes:   partTransportOperationsSizeBytes.WithLabelValues(name, "Upload"),
		downloadSizeBytes: partTransportOperationsSizeBytes.WithLabelValues(name, "Download"),
	}
}

func (pt *metricsPartTransport) observeDuration(operation string, timeStart time.Time, err error) {
	partTransportOperationsDurationSeconds.WithLabelValues(pt.name, operation, status.Code(err).String()).Observe(pt.clock.Now().Sub(timeStart).Seconds())
}

func (pt *metricsPartTransport) Upload(ctx context.Context, data []byte) (string, error) {
	timeStart := pt.clock.Now()
	locator, err := pt.base.Upload(ctx, data)
	pt.observeDuration("Upload", timeStart, err)
	if err == nil {
		pt.uploadSizeBytes.Observe(float64(len(data)))
	}
	return locator, err
}

func (pt *metricsPartTransport) Download(ctx context.Context, locator string) ([]byte, error) {
	timeStart := pt.clock.Now()
	data, err := pt.base.Download(ctx, locator)
	pt.observeDuration("Download", timeStart, err)
	if err == nil {
		pt.downloadSizeBytes.Observe(float64(len(data)))
	}
	return data, err
}

func (pt *metricsPartTransport) Delete(ctx context.Context, locator string) error {
	timeStart := pt.clock.Now()
	err := pt.base.Delete(ctx, locator)
	pt.observeDuration("Delete", timeStart, err)
	return err
}
