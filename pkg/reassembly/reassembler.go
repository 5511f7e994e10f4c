// Package reassembly reconstructs files from their parts, as described
// by a manifest.
package reassembly

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PartFetcher obtains the contents of a single part. Implementations
// need not validate the data they return, as this is done by the
// Reassembler.
type PartFetcher interface {
	FetchPart(ctx context.Context, part manifest.PartDescriptor) ([]byte, error)
}

// PartFetcherFunc is an adapter to allow the use of ordinary functions
// as a PartFetcher.
type PartFetcherFunc func(ctx context.Context, part manifest.PartDescriptor) ([]byte, error)

// FetchPart calls f(ctx, part).
func (f PartFetcherFunc) FetchPart(ctx context.Context, part manifest.PartDescriptor) ([]byte, error) {
	return f(ctx, part)
}

// PartVerifiedFunc is invoked after the contents of a part have been
// validated and written, in ascending index order.
type PartVerifiedFunc func(part manifest.PartDescriptor)

// Reassembler concatenates the parts of a file in index order, while
// validating every part and the file as a whole against a manifest.
type Reassembler struct {
	concurrency int64
}

// NewReassembler creates a Reassembler that fetches up to a given
// number of parts concurrently. This number also bounds how many parts
// that arrived out of order are kept in memory.
func NewReassembler(concurrency int) *Reassembler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reassembler{
		concurrency: int64(concurrency),
	}
}

type fetchResult struct {
	data []byte
	err  error
}

// Reassemble writes the contents of a file to a writer, part by part.
//
// Parts may be fetched in any order, but are always written in index
// order. Any failure to validate a part is reported as CorruptPart,
// carrying the index of the part. A mismatch of the whole-file
// checksum or size is reported as CorruptWhole.
//
// As data is written to the writer as soon as it is validated, the
// writer may hold an incomplete file when an error is returned. Callers
// must discard it in that case. ReassembleToBytes() and
// ReassembleToFile() take care of this.
func (r *Reassembler) Reassemble(ctx context.Context, m *manifest.FileManifest, fetcher PartFetcher, w io.Writer, onVerified PartVerifiedFunc) error {
	if err := m.Validate(); err != nil {
		return util.StatusWrap(err, "Invalid manifest")
	}

	// Fetchers may update the manifest, e.g. to track progress.
	// Only read the copy of the parts taken here.
	parts := slices.Clone(m.Parts)

	ctxWithCancel, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctxWithCancel)

	// Every part gets a slot to which its result is written. A slot
	// of the semaphore is only released when a part is consumed,
	// meaning that the number of parts that are either in flight or
	// buffered is bounded.
	results := make([]chan fetchResult, len(parts))
	for i := range results {
		results[i] = make(chan fetchResult, 1)
	}
	sem := semaphore.NewWeighted(r.concurrency)
	group.Go(func() error {
		for i, part := range parts {
			if err := util.AcquireSemaphore(groupCtx, sem, 1); err != nil {
				return err
			}
			group.Go(func() error {
				data, err := fetcher.FetchPart(groupCtx, part)
				results[i] <- fetchResult{data: data, err: err}
				return nil
			})
		}
		return nil
	})

	err := r.consume(groupCtx, m, parts, results, sem, w, onVerified)
	cancel()
	group.Wait()
	return err
}

func (r *Reassembler) consume(groupCtx context.Context, m *manifest.FileManifest, parts []manifest.PartDescriptor, results []chan fetchResult, sem *semaphore.Weighted, w io.Writer, onVerified PartVerifiedFunc) error {
	wholeGenerator := m.DigestFunction.NewGenerator(m.TotalSizeBytes)
	for i, part := range parts {
		var result fetchResult
		select {
		case result = <-results[i]:
		case <-groupCtx.Done():
			return util.StatusFromContext(groupCtx)
		}
		sem.Release(1)

		if result.err != nil {
			return util.StatusWrapf(result.err, "Failed to fetch part %d", part.Index)
		}
		data := result.data
		if sizeBytes := int64(len(data)); sizeBytes != part.SizeBytes {
			return errorinfo.NewCorruptPartError(part.Index, "Part %d has length %d, while %d bytes were expected", part.Index, sizeBytes, part.SizeBytes)
		}
		if checksum := m.DigestFunction.Compute(data); checksum != part.Checksum {
			return errorinfo.NewCorruptPartError(part.Index, "Part %d has checksum %s, while %s was expected", part.Index, checksum, part.Checksum)
		}

		wholeGenerator.Write(data)
		if _, err := w.Write(data); err != nil {
			return util.StatusWrapf(err, "Failed to write part %d", part.Index)
		}
		if onVerified != nil {
			onVerified(part)
		}
	}

	if sizeBytes := wholeGenerator.GetSizeBytes(); sizeBytes != m.TotalSizeBytes {
		return errorinfo.NewCorruptWholeError("Reassembled file has length %d, while %d bytes were expected", sizeBytes, m.TotalSizeBytes)
	}
	if checksum := wholeGenerator.Sum(); checksum != m.WholeChecksum {
		return errorinfo.NewCorruptWholeError("Reassembled file has checksum %s, while %s was expected", checksum, m.WholeChecksum)
	}
	return nil
}

// ReassembleToBytes reassembles a file in memory. It only returns the
// contents of the file if all validation succeeds.
func (r *Reassembler) ReassembleToBytes(ctx context.Context, m *manifest.FileManifest, fetcher PartFetcher, onVerified PartVerifiedFunc) ([]byte, error) {
	var b bytes.Buffer
	if err := r.Reassemble(ctx, m, fetcher, &b, onVerified); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// ReassembleToFile reassembles a file on disk. Data is written to a
// temporary file in the same directory as the destination, which is
// only linked into place at the destination path if all validation
// succeeds. Existing files at the destination path are never replaced.
// AlreadyExists is returned instead.
func (r *Reassembler) ReassembleToFile(ctx context.Context, m *manifest.FileManifest, fetcher PartFetcher, path string, onVerified PartVerifiedFunc) error {
	if err := m.Validate(); err != nil {
		return util.StatusWrap(err, "Invalid manifest")
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return util.StatusWrapWithCode(err, codes.Internal, "Failed to create temporary file")
	}
	temporaryPath := f.Name()
	if err := r.reassembleToTemporaryFile(ctx, m, fetcher, f, onVerified); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	err = os.Link(temporaryPath, path)
	os.Remove(temporaryPath)
	if err != nil {
		if os.IsExist(err) {
			return status.Errorf(codes.AlreadyExists, "File %#v already exists", path)
		}
		return util.StatusWrapfWithCode(err, codes.Internal, "Failed to link temporary file %#v to %#v", temporaryPath, path)
	}
	return nil
}

func (r *Reassembler) reassembleToTemporaryFile(ctx context.Context, m *manifest.FileManifest, fetcher PartFetcher, f *os.File, onVerified PartVerifiedFunc) error {
	if err := r.Reassemble(ctx, m, fetcher, f, onVerified); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return util.StatusWrapfWithCode(err, codes.Internal, "Failed to synchronize temporary file %#v", f.Name())
	}
	if err := f.Close(); err != nil {
		return util.StatusWrapfWithCode(err, codes.Internal, "Failed to close temporary file %#v", f.Name())
	}
	return nil
}
