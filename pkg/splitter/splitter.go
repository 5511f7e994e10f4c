// Package splitter provides a facade for storing local files as
// independently transferred parts, and for retrieving them later on.
package splitter

import (
	"context"
	"os"
	"path/filepath"

	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/manifeststore"
	"github.com/buildbarn/bb-splitter/pkg/slicing"
	"github.com/buildbarn/bb-splitter/pkg/transfer"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/sirupsen/logrus"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Splitter ties the slicer, the transfer coordinator and the manifest
// store together.
type Splitter struct {
	slicer        *slicing.Slicer
	coordinator   *transfer.Coordinator
	manifestStore manifeststore.ManifestStore
	partSizeBytes int64
}

// NewSplitter creates a Splitter that slices files into parts of
// partSizeBytes bytes.
func NewSplitter(slicer *slicing.Slicer, coordinator *transfer.Coordinator, manifestStore manifeststore.ManifestStore, partSizeBytes int64) *Splitter {
	return &Splitter{
		slicer:        slicer,
		coordinator:   coordinator,
		manifestStore: manifestStore,
		partSizeBytes: partSizeBytes,
	}
}

// checkNameAvailable returns an error if the owner already stored a
// file with the same name.
func (s *Splitter) checkNameAvailable(ctx context.Context, name, owner string) error {
	summaries, err := s.manifestStore.List(ctx, manifeststore.Filter{
		Owner:         owner,
		NameSubstring: name,
	})
	if err != nil {
		return util.StatusWrap(err, "Failed to list existing files")
	}
	for _, summary := range summaries {
		if summary.OriginalName == name {
			return status.Errorf(codes.AlreadyExists, "File already exists with identifier %#v", summary.ID)
		}
	}
	return nil
}

// openRegularFile opens a local file for reading, returning its size.
func openRegularFile(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, util.StatusWrapfWithCode(err, codes.InvalidArgument, "Failed to open file %#v", path)
	}
	fileInfo, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, util.StatusWrapfWithCode(err, codes.InvalidArgument, "Failed to obtain properties of file %#v", path)
	}
	if !fileInfo.Mode().IsRegular() {
		f.Close()
		return nil, 0, status.Errorf(codes.InvalidArgument, "Path %#v does not refer to a regular file", path)
	}
	return f, fileInfo.Size(), nil
}

// Store a local file. The file is sliced into parts, which are
// uploaded. The manifest is only saved if all parts have been
// uploaded successfully.
//
// If the upload fails after the file has been sliced, the manifest is
// returned along with the error. Parts that were uploaded retain their
// locator, so that the upload can be continued using Resume(), or its
// parts removed using Abandon().
func (s *Splitter) Store(ctx context.Context, path, owner string) (*manifest.FileManifest, error) {
	name := filepath.Base(path)
	if err := s.checkNameAvailable(ctx, name, owner); err != nil {
		return nil, err
	}

	f, _, err := openRegularFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Slice the file to compute checksums. Parts are read from the
	// file once more while uploading, so that only the parts that
	// are in flight need to be held in memory.
	m, err := s.slicer.SliceStream(f, slicing.FileInfo{
		OriginalName: name,
		Owner:        owner,
	}, s.partSizeBytes, func(part manifest.PartDescriptor, data []byte) error {
		return nil
	})
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to slice file %#v", path)
	}
	log := logrus.WithFields(logrus.Fields{
		"manifest_id": m.ID,
		"name":        m.OriginalName,
	})
	log.WithFields(logrus.Fields{
		"size":  util.FormatSizeBytes(m.TotalSizeBytes),
		"parts": len(m.Parts),
	}).Info("Uploading file")

	if err := s.uploadAndSave(ctx, m, f); err != nil {
		return m, err
	}
	log.Info("File stored")
	return m, nil
}

// Resume the upload of a file whose earlier call to Store() failed.
// Only parts that have not been uploaded yet are read from the local
// file. As their contents are validated against the manifest, the
// upload fails if the file was modified in the meantime.
func (s *Splitter) Resume(ctx context.Context, m *manifest.FileManifest, path string) error {
	if err := s.checkNameAvailable(ctx, m.OriginalName, m.Owner); err != nil {
		return err
	}
	f, sizeBytes, err := openRegularFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if sizeBytes != m.TotalSizeBytes {
		return status.Errorf(codes.FailedPrecondition, "File %#v is %d bytes in size, while manifest %#v describes a file of %d bytes", path, sizeBytes, m.ID, m.TotalSizeBytes)
	}

	log := logrus.WithFields(logrus.Fields{
		"manifest_id": m.ID,
		"name":        m.OriginalName,
	})
	log.WithFields(logrus.Fields{
		"parts":          len(m.Parts),
		"parts_uploaded": m.GetUploadedPartsCount(),
	}).Info("Resuming upload")
	if err := s.uploadAndSave(ctx, m, f); err != nil {
		return err
	}
	log.Info("File stored")
	return nil
}

func (s *Splitter) uploadAndSave(ctx context.Context, m *manifest.FileManifest, f *os.File) error {
	if err := s.coordinator.Upload(ctx, m, slicing.NewReaderAtPartSource(f, m.DigestFunction), false); err != nil {
		return err
	}
	if _, err := s.manifestStore.Save(ctx, m); err != nil {
		return util.StatusWrap(err, "Failed to save manifest")
	}
	return nil
}

// Abandon a file whose upload did not complete, removing the parts
// that were uploaded on a best effort basis. The number of parts that
// could not be removed is returned. Their locators are retained in the
// manifest, so that Abandon() may be called again.
func (s *Splitter) Abandon(ctx context.Context, m *manifest.FileManifest) (int, error) {
	if err := s.coordinator.DeleteParts(ctx, m); err != nil {
		return m.GetUploadedPartsCount(), err
	}
	return m.GetUploadedPartsCount(), nil
}

// Retrieve a file, writing it into a destination directory under its
// original name. The file only becomes visible after all parts and the
// file as a whole have been verified. Existing files are not
// overwritten.
func (s *Splitter) Retrieve(ctx context.Context, id, destinationDirectory string) (string, error) {
	m, err := s.manifestStore.Load(ctx, id)
	if err != nil {
		return "", util.StatusWrap(err, "Failed to load manifest")
	}
	path := filepath.Join(destinationDirectory, filepath.Base(m.OriginalName))
	if _, err := os.Lstat(path); err == nil {
		return "", status.Errorf(codes.AlreadyExists, "File %#v already exists", path)
	} else if !os.IsNotExist(err) {
		return "", util.StatusWrapfWithCode(err, codes.InvalidArgument, "Failed to obtain properties of file %#v", path)
	}

	logrus.WithFields(logrus.Fields{
		"manifest_id": m.ID,
		"path":        path,
		"parts":       len(m.Parts),
	}).Info("Downloading file")
	if err := s.coordinator.DownloadToFile(ctx, m, path); err != nil {
		return "", err
	}
	return path, nil
}

// Delete a file. Its parts are removed on a best effort basis, after
// which the manifest is removed. The number of parts that could not be
// removed is returned. These are reported through the ErrorLogger of
// the transfer coordinator.
func (s *Splitter) Delete(ctx context.Context, id string) (int, error) {
	m, err := s.manifestStore.Load(ctx, id)
	if err != nil {
		return 0, util.StatusWrap(err, "Failed to load manifest")
	}
	if err := s.coordinator.DeleteParts(ctx, m); err != nil {
		return 0, err
	}
	if err := s.manifestStore.Delete(ctx, id); err != nil {
		return 0, util.StatusWrap(err, "Failed to delete manifest")
	}
	remainingParts := m.GetUploadedPartsCount()
	if remainingParts > 0 {
		logrus.WithFields(logrus.Fields{
			"manifest_id":     m.ID,
			"remaining_parts": remainingParts,
		}).Warn("Not all parts of the file could be removed")
	}
	return remainingParts, nil
}

// List summaries of stored files, sorted by name.
func (s *Splitter) List(ctx context.Context, filter manifeststore.Filter) ([]manifest.Summary, error) {
	return s.manifestStore.List(ctx, filter)
}
