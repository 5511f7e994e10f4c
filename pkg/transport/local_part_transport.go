package transport

import (
	"context"
	"os"
	"path/filepath"

	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/google/uuid"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type localPartTransport struct {
	directory     string
	uuidGenerator util.UUIDGenerator
}

// NewLocalPartTransport creates a PartTransport that stores every part
// as a separate file in a local directory. Locators are the names of
// these files. Files are written under a temporary name and renamed
// once complete, so that a crash never leaves a truncated part behind
// under a name that could have been returned as a locator.
func NewLocalPartTransport(directory string, uuidGenerator util.UUIDGenerator) PartTransport {
	return &localPartTransport{
		directory:     directory,
		uuidGenerator: uuidGenerator,
	}
}

func (pt *localPartTransport) getPath(locator string) (string, error) {
	// Only accept locators that could have been generated by
	// Upload(), so that no files outside the directory are accessed.
	id, err := uuid.Parse(locator)
	if err != nil || id.String() != locator {
		return "", status.Errorf(codes.InvalidArgument, "Invalid locator %#v", locator)
	}
	return filepath.Join(pt.directory, locator), nil
}

func (pt *localPartTransport) Upload(ctx context.Context, data []byte) (string, error) {
	if err := util.StatusFromContext(ctx); err != nil {
		return "", err
	}
	id, err := pt.uuidGenerator()
	if err != nil {
		return "", util.StatusWrap(err, "Failed to generate locator")
	}
	locator := id.String()
	path := filepath.Join(pt.directory, locator)
	temporaryPath := path + ".tmp"
	if err := os.WriteFile(temporaryPath, data, 0o644); err != nil {
		os.Remove(temporaryPath)
		return "", util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to write part file %#v", temporaryPath)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return "", util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to rename part file %#v", temporaryPath)
	}
	return locator, nil
}

func (pt *localPartTransport) Download(ctx context.Context, locator string) ([]byte, error) {
	if err := util.StatusFromContext(ctx); err != nil {
		return nil, err
	}
	path, err := pt.getPath(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.Errorf(codes.NotFound, "Part with locator %#v not found", locator)
		}
		return nil, util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to read part file %#v", path)
	}
	return data, nil
}

func (pt *localPartTransport) Delete(ctx context.Context, locator string) error {
	if err := util.StatusFromContext(ctx); err != nil {
		return err
	}
	path, err := pt.getPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return status.Errorf(codes.NotFound, "Part with locator %#v not found", locator)
		}
		return util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to remove part file %#v", path)
	}
	return nil
}
