package slicing

import (
	"context"
	"io"

	"github.com/buildbarn/bb-splitter/pkg/digest"
	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PartSource provides the raw bytes of the parts of a file that was
// sliced previously. It is used by the transfer coordinator to obtain
// the data to upload. Parts may be requested multiple times and in any
// order, as uploads are retried and resumed.
type PartSource interface {
	GetPart(ctx context.Context, part manifest.PartDescriptor) ([]byte, error)
}

type byteSlicePartSource struct {
	parts [][]byte
}

// NewByteSlicePartSource creates a PartSource that is backed by the
// part contents returned by Slicer.Slice().
func NewByteSlicePartSource(parts [][]byte) PartSource {
	return &byteSlicePartSource{
		parts: parts,
	}
}

func (ps *byteSlicePartSource) GetPart(ctx context.Context, part manifest.PartDescriptor) ([]byte, error) {
	if part.Index < 0 || part.Index >= len(ps.parts) {
		return nil, status.Errorf(codes.NotFound, "Part %d does not exist", part.Index)
	}
	return ps.parts[part.Index], nil
}

type readerAtPartSource struct {
	r              io.ReaderAt
	digestFunction digest.Function
}

// NewReaderAtPartSource creates a PartSource that reads parts from the
// original file, such as an *os.File. This permits uploading files of
// arbitrary size while only keeping the parts in flight in memory.
//
// As the file may have been modified after it was sliced, the contents
// of every part are validated against its checksum.
func NewReaderAtPartSource(r io.ReaderAt, digestFunction digest.Function) PartSource {
	return &readerAtPartSource{
		r:              r,
		digestFunction: digestFunction,
	}
}

func (ps *readerAtPartSource) GetPart(ctx context.Context, part manifest.PartDescriptor) ([]byte, error) {
	data := make([]byte, part.SizeBytes)
	if n, err := ps.r.ReadAt(data, part.OffsetBytes); int64(n) != part.SizeBytes {
		if err == nil || err == io.EOF {
			return nil, status.Errorf(codes.FailedPrecondition, "Source file was truncated after part %d was sliced", part.Index)
		}
		return nil, util.StatusWrapf(err, "Failed to read part %d from source file", part.Index)
	}
	if checksum := ps.digestFunction.Compute(data); checksum != part.Checksum {
		return nil, status.Errorf(codes.FailedPrecondition, "Part %d of the source file has checksum %s, while %s was expected, meaning the file was modified after it was sliced", part.Index, checksum, part.Checksum)
	}
	return data, nil
}
