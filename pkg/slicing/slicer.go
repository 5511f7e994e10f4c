// Package slicing splits byte streams into parts of bounded size and
// creates the manifest that describes how to reassemble them.
//
// Slicing operates on raw bytes only. No knowledge of container
// formats is applied, meaning that any file is reproduced exactly when
// its parts are concatenated in index order.
package slicing

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/buildbarn/bb-splitter/pkg/clock"
	"github.com/buildbarn/bb-splitter/pkg/digest"
	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/gabriel-vasile/mimetype"
)

// FileInfo contains the properties of a file that are recorded in its
// manifest, but that cannot be derived from its contents.
type FileInfo struct {
	OriginalName string
	Owner        string
}

// PartHandler is invoked by Slicer.SliceStream() for every part, in
// ascending index order. The data is only valid for the duration of
// the call.
type PartHandler func(part manifest.PartDescriptor, data []byte) error

// Slicer creates manifests by reading byte streams.
type Slicer struct {
	digestFunction digest.Function
	uuidGenerator  util.UUIDGenerator
	clock          clock.Clock
}

// NewSlicer creates a Slicer that computes checksums using a given
// digest function.
func NewSlicer(digestFunction digest.Function, uuidGenerator util.UUIDGenerator, clock clock.Clock) *Slicer {
	return &Slicer{
		digestFunction: digestFunction,
		uuidGenerator:  uuidGenerator,
		clock:          clock,
	}
}

// SliceStream reads a stream until completion, splitting it up into
// parts of exactly partSizeBytes bytes, except for the last part which
// holds the remainder. A stream of zero bytes yields a single part of
// zero bytes.
//
// Only a single part is held in memory at any point in time. Each part
// is passed to the handler as soon as it has been read. The resulting
// manifest has no locators, and all of its parts are pending.
//
// The part size is not validated against limits of the transport. It
// is the caller's responsibility to do so.
func (s *Slicer) SliceStream(r io.Reader, info FileInfo, partSizeBytes int64, handler PartHandler) (*manifest.FileManifest, error) {
	if partSizeBytes <= 0 {
		return nil, errorinfo.NewInvalidInputError("Part size must be positive, while %d bytes was requested", partSizeBytes)
	}
	id, err := s.uuidGenerator()
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to generate manifest identifier")
	}

	m := &manifest.FileManifest{
		ID:             id.String(),
		OriginalName:   info.OriginalName,
		Owner:          info.Owner,
		FileType:       strings.TrimPrefix(filepath.Ext(info.OriginalName), "."),
		CreationTime:   s.clock.Now().UTC(),
		PartSizeBytes:  partSizeBytes,
		DigestFunction: s.digestFunction,
	}

	// Compute the whole-file checksum while reading, so that the
	// input only needs to be traversed once.
	wholeGenerator := s.digestFunction.NewGenerator(-1)
	tee := io.TeeReader(r, wholeGenerator)
	var partBuffer bytes.Buffer
	for index := 0; ; index++ {
		partBuffer.Reset()
		n, err := io.CopyN(&partBuffer, tee, partSizeBytes)
		if err != nil && err != io.EOF {
			return nil, util.StatusWrapf(err, "Failed to read part %d", index)
		}
		if n == 0 && index > 0 {
			// Input size is a multiple of the part size.
			break
		}

		data := partBuffer.Bytes()
		if index == 0 {
			m.ContentType = mimetype.Detect(data).String()
		}
		part := manifest.PartDescriptor{
			Index:       index,
			OffsetBytes: m.TotalSizeBytes,
			SizeBytes:   n,
			Checksum:    s.digestFunction.Compute(data),
			State:       manifest.TransportStatePending,
		}
		if err := handler(part, data); err != nil {
			return nil, util.StatusWrapf(err, "Failed to process part %d", index)
		}
		m.Parts = append(m.Parts, part)
		m.TotalSizeBytes += n

		if n < partSizeBytes {
			break
		}
	}
	m.WholeChecksum = wholeGenerator.Sum()
	return m, nil
}

// Slice is identical to SliceStream(), except that the contents of all
// parts are returned. This should only be used for inputs that fit in
// memory.
func (s *Slicer) Slice(r io.Reader, info FileInfo, partSizeBytes int64) (*manifest.FileManifest, [][]byte, error) {
	var parts [][]byte
	m, err := s.SliceStream(r, info, partSizeBytes, func(part manifest.PartDescriptor, data []byte) error {
		parts = append(parts, append([]byte{}, data...))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return m, parts, nil
}
