package manifest

import (
	"encoding/json"
	"time"

	"github.com/buildbarn/bb-splitter/pkg/digest"
	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/grpc/codes"
)

// encodingVersion is stored in every persisted manifest, so that the
// format can be changed in a backward compatible way.
const encodingVersion = 1

// 64-bit integers are encoded as strings, similar to protojson, so
// that sizes and offsets beyond 2^53 survive consumers that decode
// numbers as doubles.
type encodedPart struct {
	Index       int            `json:"index"`
	OffsetBytes int64          `json:"offsetBytes,string"`
	SizeBytes   int64          `json:"sizeBytes,string"`
	Checksum    string         `json:"checksum"`
	Locator     string         `json:"locator,omitempty"`
	State       TransportState `json:"state"`
}

type encodedManifest struct {
	Version        int           `json:"version"`
	ID             string        `json:"id"`
	OriginalName   string        `json:"originalName"`
	Owner          string        `json:"owner,omitempty"`
	FileType       string        `json:"fileType,omitempty"`
	ContentType    string        `json:"contentType,omitempty"`
	CreationTime   time.Time     `json:"creationTime"`
	TotalSizeBytes int64         `json:"totalSizeBytes,string"`
	PartSizeBytes  int64         `json:"partSizeBytes,string"`
	DigestFunction string        `json:"digestFunction"`
	WholeChecksum  string        `json:"wholeChecksum"`
	Parts          []encodedPart `json:"parts"`
}

// Marshal converts a manifest to a self-describing JSON document.
func Marshal(m *FileManifest) ([]byte, error) {
	encoded := encodedManifest{
		Version:        encodingVersion,
		ID:             m.ID,
		OriginalName:   m.OriginalName,
		Owner:          m.Owner,
		FileType:       m.FileType,
		ContentType:    m.ContentType,
		CreationTime:   m.CreationTime.UTC(),
		TotalSizeBytes: m.TotalSizeBytes,
		PartSizeBytes:  m.PartSizeBytes,
		DigestFunction: m.DigestFunction.GetName(),
		WholeChecksum:  m.WholeChecksum.GetHashString(),
		Parts:          make([]encodedPart, 0, len(m.Parts)),
	}
	for _, part := range m.Parts {
		encoded.Parts = append(encoded.Parts, encodedPart{
			Index:       part.Index,
			OffsetBytes: part.OffsetBytes,
			SizeBytes:   part.SizeBytes,
			Checksum:    part.Checksum.GetHashString(),
			Locator:     part.Locator,
			State:       part.State,
		})
	}
	data, err := json.Marshal(&encoded)
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.Internal, "Failed to marshal manifest")
	}
	return data, nil
}

// Unmarshal parses a manifest that was created using Marshal(). The
// resulting manifest is validated. Malformed manifests are rejected
// with an InvalidInput error.
func Unmarshal(data []byte) (*FileManifest, error) {
	var encoded encodedManifest
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, errorinfo.NewInvalidInputError("Malformed manifest: %s", err)
	}
	if encoded.Version != encodingVersion {
		return nil, errorinfo.NewInvalidInputError("Manifest has unsupported version %d", encoded.Version)
	}
	digestFunction, err := digest.GetFunction(encoded.DigestFunction)
	if err != nil || encoded.DigestFunction == "" {
		return nil, errorinfo.NewInvalidInputError("Manifest has unsupported digest function %#v", encoded.DigestFunction)
	}
	wholeChecksum, err := digestFunction.NewDigest(encoded.WholeChecksum)
	if err != nil {
		return nil, util.StatusWrap(errorinfo.NewInvalidInputError("%s", err), "Invalid whole-file checksum")
	}

	m := &FileManifest{
		ID:             encoded.ID,
		OriginalName:   encoded.OriginalName,
		Owner:          encoded.Owner,
		FileType:       encoded.FileType,
		ContentType:    encoded.ContentType,
		CreationTime:   encoded.CreationTime,
		TotalSizeBytes: encoded.TotalSizeBytes,
		PartSizeBytes:  encoded.PartSizeBytes,
		DigestFunction: digestFunction,
		WholeChecksum:  wholeChecksum,
		Parts:          make([]PartDescriptor, 0, len(encoded.Parts)),
	}
	for i, part := range encoded.Parts {
		checksum, err := digestFunction.NewDigest(part.Checksum)
		if err != nil {
			return nil, util.StatusWrapf(errorinfo.NewInvalidInputError("%s", err), "Invalid checksum for part at position %d", i)
		}
		if part.State.IsInFlight() {
			// Manifests are only written while no transfer is
			// running, but be lenient towards stores that
			// contain snapshots of interrupted transfers.
			part.State = TransportStatePending
		}
		m.Parts = append(m.Parts, PartDescriptor{
			Index:       part.Index,
			OffsetBytes: part.OffsetBytes,
			SizeBytes:   part.SizeBytes,
			Checksum:    checksum,
			Locator:     part.Locator,
			State:       part.State,
		})
	}
	if err := m.Validate(); err != nil {
		return nil, util.StatusWrap(err, "Malformed manifest")
	}
	return m, nil
}
