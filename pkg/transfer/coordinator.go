// Package transfer moves the parts of sliced files to and from a
// PartTransport, keeping track of progress in the file's manifest.
package transfer

import (
	"context"
	"sync"

	"github.com/buildbarn/bb-splitter/pkg/clock"
	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/random"
	"github.com/buildbarn/bb-splitter/pkg/reassembly"
	"github.com/buildbarn/bb-splitter/pkg/slicing"
	"github.com/buildbarn/bb-splitter/pkg/transport"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	otel_codes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	coordinatorPartOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "splitter",
			Name:      "coordinator_part_operations_total",
			Help:      "Number of part operations completed by the transfer coordinator, by outcome.",
		},
		[]string{"operation", "outcome"})
	coordinatorPartRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "splitter",
			Name:      "coordinator_part_retries_total",
			Help:      "Number of times the transfer coordinator retried a part operation after a transient failure.",
		},
		[]string{"operation"})
)

func init() {
	prometheus.MustRegister(coordinatorPartOperationsTotal)
	prometheus.MustRegister(coordinatorPartRetriesTotal)
}

const (
	operationUpload   = "Upload"
	operationDownload = "Download"
	operationDelete   = "Delete"
)

// Coordinator transfers the parts of files described by manifests.
//
// The Coordinator is the only component that modifies the locators and
// transport states of parts in a manifest. Every part is transferred
// independently. Failures are retried per part, and a transfer that is
// interrupted can be resumed by invoking the Coordinator again with the
// same manifest.
//
// At most one transfer may be active for a given manifest. Additional
// transfers fail with TransferInProgress.
type Coordinator struct {
	partTransport        transport.PartTransport
	reassembler          *reassembly.Reassembler
	concurrency          int64
	maximumPartSizeBytes int64
	retryPolicy          RetryPolicy
	clock                clock.Clock
	randomGenerator      random.ThreadSafeGenerator
	tracer               trace.Tracer
	errorLogger          util.ErrorLogger

	lock            sync.Mutex
	activeTransfers map[string]struct{}
}

// NewCoordinator creates a Coordinator that transfers up to
// concurrency parts at a time. Parts larger than maximumPartSizeBytes
// are rejected before any upload is attempted. A value of zero
// disables this limit.
func NewCoordinator(partTransport transport.PartTransport, concurrency int, maximumPartSizeBytes int64, retryPolicy RetryPolicy, clock clock.Clock, randomGenerator random.ThreadSafeGenerator, tracerProvider trace.TracerProvider, errorLogger util.ErrorLogger) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		partTransport:        partTransport,
		reassembler:          reassembly.NewReassembler(concurrency),
		concurrency:          int64(concurrency),
		maximumPartSizeBytes: maximumPartSizeBytes,
		retryPolicy:          retryPolicy,
		clock:                clock,
		randomGenerator:      randomGenerator,
		tracer:               tracerProvider.Tracer("github.com/buildbarn/bb-splitter/pkg/transfer"),
		errorLogger:          errorLogger,
		activeTransfers:      map[string]struct{}{},
	}
}

// startTransfer marks a transfer of a manifest as active. The returned
// function must be called when the transfer completes.
func (c *Coordinator) startTransfer(m *manifest.FileManifest) (func(), error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, ok := c.activeTransfers[m.ID]; ok {
		return nil, errorinfo.NewTransferInProgressError(m.ID)
	}
	c.activeTransfers[m.ID] = struct{}{}
	return func() {
		c.lock.Lock()
		delete(c.activeTransfers, m.ID)
		c.lock.Unlock()
	}, nil
}

// partOperation is a single call against the transport for a given
// part. It is invoked repeatedly while it fails with a transient error.
type partOperation func(ctx context.Context) error

// runWithRetries performs an operation on a part, retrying transient
// failures according to the retry policy. Errors caused by the
// cancelation of ctx are returned as is. Other errors are converted to
// TransportFailure errors, unless they already carry a classification.
func (c *Coordinator) runWithRetries(ctx context.Context, m *manifest.FileManifest, operation string, index int, op partOperation) error {
	ctx, span := c.tracer.Start(ctx, "transfer.Coordinator."+operation+"Part", trace.WithAttributes(
		attribute.String("manifest_id", m.ID),
		attribute.Int("part_index", index),
	))
	defer span.End()

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			coordinatorPartOperationsTotal.WithLabelValues(operation, "Success").Inc()
			return nil
		}
		if ctx.Err() != nil {
			span.SetStatus(otel_codes.Error, "Canceled")
			return util.StatusFromContext(ctx)
		}

		fields := logrus.Fields{
			"manifest_id": m.ID,
			"operation":   operation,
			"part_index":  index,
			"attempt":     attempt,
		}
		if !IsTransientError(err) || attempt >= c.retryPolicy.MaximumAttempts {
			coordinatorPartOperationsTotal.WithLabelValues(operation, "Failure").Inc()
			logrus.WithFields(fields).WithError(err).Error("Part operation failed")
			span.RecordError(err)
			span.SetStatus(otel_codes.Error, err.Error())
			if errorinfo.GetReason(err) != errorinfo.ReasonNone {
				return err
			}
			return errorinfo.NewTransportFailureError(index, util.StatusWrapf(err, "%s of part %d of manifest %#v failed after %d attempts", operation, index, m.ID, attempt))
		}

		backoff := c.retryPolicy.GetBackoff(attempt, c.randomGenerator)
		fields["backoff"] = backoff
		logrus.WithFields(fields).WithError(err).Warn("Part operation failed, retrying")
		coordinatorPartRetriesTotal.WithLabelValues(operation).Inc()
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		if !clock.Sleep(ctx, c.clock, backoff) {
			return util.StatusFromContext(ctx)
		}
	}
}

// Upload the parts of a file that have no locator yet. Upon success,
// all parts of the manifest have a locator and are in state Uploaded,
// meaning that the manifest can be persisted.
//
// If force is set, all parts are uploaded, regardless of whether they
// already have a locator. The parts referenced by the old locators are
// deleted afterwards.
//
// Upon failure, parts that were uploaded successfully retain their
// locator, so that a subsequent call only needs to upload the
// remaining parts. Parts whose upload was interrupted are reverted to
// Pending, while parts for which all attempts failed are marked
// Failed.
func (c *Coordinator) Upload(ctx context.Context, m *manifest.FileManifest, source slicing.PartSource, force bool) error {
	if err := m.Validate(); err != nil {
		return util.StatusWrap(err, "Invalid manifest")
	}
	if c.maximumPartSizeBytes > 0 {
		for _, part := range m.Parts {
			if part.SizeBytes > c.maximumPartSizeBytes {
				return errorinfo.NewSizeLimitExceededError(part.Index, part.SizeBytes, c.maximumPartSizeBytes)
			}
		}
	}
	finishTransfer, err := c.startTransfer(m)
	if err != nil {
		return err
	}
	defer finishTransfer()

	var pending []int
	var replacedParts []manifest.PartDescriptor
	for i := range m.Parts {
		part := &m.Parts[i]
		if part.HasLocator() && !force {
			part.State = manifest.TransportStateUploaded
		} else {
			if part.HasLocator() {
				replacedParts = append(replacedParts, *part)
			}
			part.Locator = ""
			part.State = manifest.TransportStatePending
			pending = append(pending, i)
		}
	}
	logrus.WithFields(logrus.Fields{
		"manifest_id":   m.ID,
		"parts_total":   len(m.Parts),
		"parts_pending": len(pending),
	}).Debug("Starting upload")

	if err := c.forEachPart(ctx, pending, func(ctx context.Context, index int) error {
		return c.uploadPart(ctx, m, index, source)
	}); err != nil {
		return util.StatusWrapf(err, "Failed to upload manifest %#v", m.ID)
	}

	for _, part := range replacedParts {
		c.deleteLocator(ctx, m, part.Index, part.Locator)
	}
	return nil
}

// forEachPart invokes a function for a list of parts in order, running
// at most c.concurrency of them in parallel. Processing stops at the
// first failure, after which no further parts are started.
func (c *Coordinator) forEachPart(ctx context.Context, indices []int, f func(ctx context.Context, index int) error) error {
	group, groupCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(c.concurrency)
	for _, index := range indices {
		if err := util.AcquireSemaphore(groupCtx, sem, 1); err != nil {
			break
		}
		group.Go(func() error {
			// Keep the semaphore acquired on failure, so that no
			// further parts are started.
			if err := f(groupCtx, index); err != nil {
				return err
			}
			sem.Release(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	// The loop above may have terminated due to cancelation before
	// any part failed.
	return util.StatusFromContext(ctx)
}

func (c *Coordinator) uploadPart(ctx context.Context, m *manifest.FileManifest, index int, source slicing.PartSource) error {
	part := &m.Parts[index]
	part.State = manifest.TransportStateUploading

	data, err := source.GetPart(ctx, *part)
	if err != nil {
		if util.IsContextError(ctx, err) {
			part.State = manifest.TransportStatePending
			return util.StatusFromContext(ctx)
		}
		part.State = manifest.TransportStateFailed
		return util.StatusWrapf(err, "Failed to obtain contents of part %d", index)
	}

	var locator string
	if err := c.runWithRetries(ctx, m, operationUpload, index, func(ctx context.Context) error {
		var err error
		locator, err = c.partTransport.Upload(ctx, data)
		return err
	}); err != nil {
		if errorinfo.GetReason(err) == errorinfo.ReasonNone {
			// Interrupted by cancelation.
			part.State = manifest.TransportStatePending
		} else {
			part.State = manifest.TransportStateFailed
		}
		return err
	}
	part.Locator = locator
	part.State = manifest.TransportStateUploaded
	return nil
}

// DownloadToFile downloads all parts of a file and reassembles them at
// a given path. The file is only created if it passes validation.
func (c *Coordinator) DownloadToFile(ctx context.Context, m *manifest.FileManifest, path string) error {
	return c.download(ctx, m, func(snapshot *manifest.FileManifest, fetcher reassembly.PartFetcher, onVerified reassembly.PartVerifiedFunc) error {
		return c.reassembler.ReassembleToFile(ctx, snapshot, fetcher, path, onVerified)
	})
}

// DownloadToBytes downloads all parts of a file and returns its
// contents. This should only be used for files that fit in memory.
func (c *Coordinator) DownloadToBytes(ctx context.Context, m *manifest.FileManifest) ([]byte, error) {
	var data []byte
	if err := c.download(ctx, m, func(snapshot *manifest.FileManifest, fetcher reassembly.PartFetcher, onVerified reassembly.PartVerifiedFunc) error {
		var err error
		data, err = c.reassembler.ReassembleToBytes(ctx, snapshot, fetcher, onVerified)
		return err
	}); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Coordinator) download(ctx context.Context, m *manifest.FileManifest, reassemble func(snapshot *manifest.FileManifest, fetcher reassembly.PartFetcher, onVerified reassembly.PartVerifiedFunc) error) error {
	if err := m.Validate(); err != nil {
		return util.StatusWrap(err, "Invalid manifest")
	}
	for _, part := range m.Parts {
		if !part.HasLocator() {
			return errorinfo.NewInvalidInputError("Part %d of manifest %#v has not been uploaded", part.Index, m.ID)
		}
	}
	finishTransfer, err := c.startTransfer(m)
	if err != nil {
		return err
	}
	defer finishTransfer()

	for i := range m.Parts {
		m.Parts[i].State = manifest.TransportStatePending
	}

	// The reassembler reads the parts of the manifest while fetches
	// are in flight. Let it operate on a copy, and only update the
	// states of parts in the caller's manifest while holding a lock.
	snapshot := m.Clone()
	var stateLock sync.Mutex
	setState := func(index int, state manifest.TransportState) {
		stateLock.Lock()
		m.Parts[index].State = state
		stateLock.Unlock()
	}
	fetcher := reassembly.PartFetcherFunc(func(ctx context.Context, part manifest.PartDescriptor) ([]byte, error) {
		setState(part.Index, manifest.TransportStateDownloading)
		var data []byte
		if err := c.runWithRetries(ctx, snapshot, operationDownload, part.Index, func(ctx context.Context) error {
			var err error
			data, err = c.partTransport.Download(ctx, part.Locator)
			if status.Code(err) == codes.DataLoss && errorinfo.GetReason(err) == errorinfo.ReasonNone {
				// Payloads that cannot be decoded are
				// corrupted, and are not retried.
				return errorinfo.NewCorruptPartError(part.Index, "Part %d could not be decoded: %s", part.Index, status.Convert(err).Message())
			}
			return err
		}); err != nil {
			return nil, err
		}
		return data, nil
	})
	err = reassemble(snapshot, fetcher, func(part manifest.PartDescriptor) {
		setState(part.Index, manifest.TransportStateVerified)
	})
	if err != nil {
		// All fetches have completed by now. Integrity failures
		// and exhausted retries mark the offending part as
		// failed. Interrupted downloads may simply be restarted.
		failedIndex, hasFailedIndex := errorinfo.GetPartIndex(err)
		for i := range m.Parts {
			part := &m.Parts[i]
			if hasFailedIndex && i == failedIndex {
				part.State = manifest.TransportStateFailed
			} else if part.State == manifest.TransportStateDownloading {
				part.State = manifest.TransportStatePending
			}
		}
		return util.StatusWrapf(err, "Failed to download manifest %#v", m.ID)
	}
	return nil
}

// DeleteParts removes all parts of a file from the transport. Parts
// are removed on a best effort basis: failures are reported through
// the ErrorLogger, and the locators of the affected parts are retained
// in the manifest. Parts that no longer exist are considered deleted.
func (c *Coordinator) DeleteParts(ctx context.Context, m *manifest.FileManifest) error {
	finishTransfer, err := c.startTransfer(m)
	if err != nil {
		return err
	}
	defer finishTransfer()

	var indices []int
	for i := range m.Parts {
		if m.Parts[i].HasLocator() {
			indices = append(indices, i)
		}
	}
	if err := c.forEachPart(ctx, indices, func(ctx context.Context, index int) error {
		part := &m.Parts[index]
		if c.deleteLocator(ctx, m, index, part.Locator) {
			part.Locator = ""
			part.State = manifest.TransportStatePending
		}
		return util.StatusFromContext(ctx)
	}); err != nil {
		return util.StatusWrapf(err, "Failed to delete parts of manifest %#v", m.ID)
	}
	return nil
}

// deleteLocator removes a single part from the transport, returning
// whether the part is gone. Failures are passed to the ErrorLogger.
func (c *Coordinator) deleteLocator(ctx context.Context, m *manifest.FileManifest, index int, locator string) bool {
	err := c.runWithRetries(ctx, m, operationDelete, index, func(ctx context.Context) error {
		if err := c.partTransport.Delete(ctx, locator); status.Code(err) != codes.NotFound {
			return err
		}
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			c.errorLogger.Log(util.StatusWrapf(err, "Failed to delete part with locator %#v of manifest %#v", locator, m.ID))
		}
		return false
	}
	return true
}
