// Package manifest contains the description of a file that has been
// sliced into parts, and the logic for persisting it.
//
// A FileManifest is created by package slicing. Afterwards, only the
// locators and transport states of its parts may be changed, which is
// done exclusively by package transfer. Part indices are a stable
// identity for the lifetime of a manifest and are never renumbered.
package manifest

import (
	"time"

	"github.com/buildbarn/bb-splitter/pkg/digest"
	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
)

// DefaultPartSizeBytes is the part size that is used if none is
// configured explicitly.
const DefaultPartSizeBytes = 8 * 1024 * 1024

// PartDescriptor describes a single contiguous range of bytes of the
// original file.
type PartDescriptor struct {
	Index       int
	OffsetBytes int64
	SizeBytes   int64
	// Checksum of the raw bytes of the part, computed while slicing.
	// It does not depend on any encoding applied by the transport.
	Checksum digest.Digest

	// Opaque reference obtained from the transport. An empty string
	// means that the part has not been uploaded.
	Locator string
	State   TransportState
}

// HasLocator returns true if the part has been stored by the
// transport.
func (p *PartDescriptor) HasLocator() bool {
	return p.Locator != ""
}

// FileManifest describes how a file was sliced into parts, and where
// those parts are stored.
type FileManifest struct {
	// Identifier of the manifest, assigned at slicing time. It is
	// used as the key under which the manifest is stored.
	ID string

	OriginalName string
	// Owner of the file. Used to filter listings. Authorization
	// based on this field is left to the manifest store.
	Owner string
	// Extension of the original file name without the leading dot.
	FileType string
	// MIME type detected from the leading bytes of the file. This is
	// informational only and never influences slicing.
	ContentType  string
	CreationTime time.Time

	TotalSizeBytes int64
	PartSizeBytes  int64
	DigestFunction digest.Function
	WholeChecksum  digest.Digest
	Parts          []PartDescriptor
}

// GetPartCount returns the number of parts into which a file of a
// given size is sliced. A file of zero bytes yields a single part
// of zero bytes.
func GetPartCount(totalSizeBytes, partSizeBytes int64) int {
	if totalSizeBytes == 0 {
		return 1
	}
	return int((totalSizeBytes + partSizeBytes - 1) / partSizeBytes)
}

// Validate checks whether the parts of the manifest are contiguous,
// non-overlapping and consistent with the total size and part size.
func (m *FileManifest) Validate() error {
	if m.ID == "" {
		return errorinfo.NewInvalidInputError("Manifest has no identifier")
	}
	if m.PartSizeBytes <= 0 {
		return errorinfo.NewInvalidInputError("Manifest has part size %d, while it must be positive", m.PartSizeBytes)
	}
	if m.TotalSizeBytes < 0 {
		return errorinfo.NewInvalidInputError("Manifest has negative total size %d", m.TotalSizeBytes)
	}
	if !m.DigestFunction.IsValid() {
		return errorinfo.NewInvalidInputError("Manifest has no valid digest function")
	}
	if m.WholeChecksum == digest.BadDigest {
		return errorinfo.NewInvalidInputError("Manifest has no whole-file checksum")
	}
	if len(m.Parts) == 0 {
		return errorinfo.NewInvalidInputError("Manifest has no parts")
	}
	if expected := GetPartCount(m.TotalSizeBytes, m.PartSizeBytes); len(m.Parts) != expected {
		return errorinfo.NewInvalidInputError("Manifest has %d parts, while a file of %d bytes with part size %d should have %d parts", len(m.Parts), m.TotalSizeBytes, m.PartSizeBytes, expected)
	}

	offsetBytes := int64(0)
	for i := range m.Parts {
		part := &m.Parts[i]
		if part.Index != i {
			return errorinfo.NewInvalidInputError("Part at position %d has index %d", i, part.Index)
		}
		if part.OffsetBytes != offsetBytes {
			return errorinfo.NewInvalidInputError("Part %d starts at offset %d, while offset %d was expected", i, part.OffsetBytes, offsetBytes)
		}
		if part.SizeBytes < 0 || part.SizeBytes > m.PartSizeBytes {
			return errorinfo.NewInvalidInputError("Part %d has size %d, which is not within range [0, %d]", i, part.SizeBytes, m.PartSizeBytes)
		}
		if i < len(m.Parts)-1 && part.SizeBytes != m.PartSizeBytes {
			return errorinfo.NewInvalidInputError("Part %d has size %d, while only the last part may be smaller than %d bytes", i, part.SizeBytes, m.PartSizeBytes)
		}
		if part.SizeBytes == 0 && m.TotalSizeBytes != 0 {
			return errorinfo.NewInvalidInputError("Part %d is empty", i)
		}
		if part.Checksum == digest.BadDigest {
			return errorinfo.NewInvalidInputError("Part %d has no checksum", i)
		}
		offsetBytes += part.SizeBytes
	}
	if offsetBytes != m.TotalSizeBytes {
		return errorinfo.NewInvalidInputError("Parts have a combined size of %d bytes, while the file is %d bytes in size", offsetBytes, m.TotalSizeBytes)
	}
	return nil
}

// IsComplete returns true if every part of the manifest has been
// uploaded. Only complete manifests may be persisted.
func (m *FileManifest) IsComplete() bool {
	for i := range m.Parts {
		part := &m.Parts[i]
		if !part.HasLocator() || (part.State != TransportStateUploaded && part.State != TransportStateVerified) {
			return false
		}
	}
	return true
}

// GetUploadedPartsCount returns the number of parts that have a
// locator.
func (m *FileManifest) GetUploadedPartsCount() int {
	count := 0
	for i := range m.Parts {
		if m.Parts[i].HasLocator() {
			count++
		}
	}
	return count
}

// Clone returns a deep copy of the manifest. The transfer coordinator
// may update the original while a copy is being encoded.
func (m *FileManifest) Clone() *FileManifest {
	c := *m
	c.Parts = append([]PartDescriptor(nil), m.Parts...)
	return &c
}

// Summary of a manifest, as returned by listings.
type Summary struct {
	ID             string
	OriginalName   string
	Owner          string
	FileType       string
	TotalSizeBytes int64
	PartsCount     int
	CreationTime   time.Time
}

// GetSummary returns a summary of the manifest.
func (m *FileManifest) GetSummary() Summary {
	return Summary{
		ID:             m.ID,
		OriginalName:   m.OriginalName,
		Owner:          m.Owner,
		FileType:       m.FileType,
		TotalSizeBytes: m.TotalSizeBytes,
		PartsCount:     len(m.Parts),
		CreationTime:   m.CreationTime,
	}
}
