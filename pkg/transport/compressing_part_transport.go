package transport

import (
	"context"

	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Codec of a compressing PartTransport.
type Codec interface {
	Encode(data []byte) []byte
	Decode(data []byte) ([]byte, error)
}

type zstdCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCodec creates a Codec that compresses parts using Zstandard
// at a given compression level. Decompressed parts may not exceed
// maximumDecodedSizeBytes.
func NewZstdCodec(level int, maximumDecodedSizeBytes int64) (Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.InvalidArgument, "Failed to create Zstandard encoder")
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maximumDecodedSizeBytes)))
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.InvalidArgument, "Failed to create Zstandard decoder")
	}
	return &zstdCodec{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func (c *zstdCodec) Encode(data []byte) []byte {
	return c.encoder.EncodeAll(data, nil)
}

func (c *zstdCodec) Decode(data []byte) ([]byte, error) {
	decoded, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.DataLoss, "Failed to decompress Zstandard data")
	}
	return decoded, nil
}

type s2Codec struct {
	maximumDecodedSizeBytes int64
}

// NewS2Codec creates a Codec that compresses parts using S2, which is
// faster than Zstandard at the cost of a lower compression ratio.
func NewS2Codec(maximumDecodedSizeBytes int64) Codec {
	return s2Codec{
		maximumDecodedSizeBytes: maximumDecodedSizeBytes,
	}
}

func (c s2Codec) Encode(data []byte) []byte {
	return s2.Encode(nil, data)
}

func (c s2Codec) Decode(data []byte) ([]byte, error) {
	decodedSizeBytes, err := s2.DecodedLen(data)
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.DataLoss, "Failed to decompress S2 data")
	}
	if int64(decodedSizeBytes) > c.maximumDecodedSizeBytes {
		return nil, status.Errorf(codes.DataLoss, "Decompressed S2 data would be %d bytes in size, which exceeds the maximum of %d bytes", decodedSizeBytes, c.maximumDecodedSizeBytes)
	}
	decoded, err := s2.Decode(nil, data)
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.DataLoss, "Failed to decompress S2 data")
	}
	return decoded, nil
}

type compressingPartTransport struct {
	PartTransport
	codec Codec
}

// NewCompressingPartTransport creates a decorator for PartTransport
// that compresses parts before uploading them, and decompresses them
// after downloading. Compression is transparent to callers, meaning
// that checksums stored in manifests continue to apply to the raw
// bytes of every part.
func NewCompressingPartTransport(base PartTransport, codec Codec) PartTransport {
	return &compressingPartTransport{
		PartTransport: base,
		codec:         codec,
	}
}

func (pt *compressingPartTransport) Upload(ctx context.Context, data []byte) (string, error) {
	return pt.PartTransport.Upload(ctx, pt.codec.Encode(data))
}

func (pt *compressingPartTransport) Download(ctx context.Context, locator string) ([]byte, error) {
	data, err := pt.PartTransport.Download(ctx, locator)
	if err != nil {
		return nil, err
	}
	return pt.codec.Decode(data)
}
