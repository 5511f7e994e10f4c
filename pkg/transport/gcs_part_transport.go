package transport

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/buildbarn/bb-splitter/pkg/cloud/gcp"
	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
)

func convertGCSError(ctx context.Context, err error, msg string) error {
	if ctxErr := util.StatusFromContext(ctx); ctxErr != nil {
		return util.StatusWrap(ctxErr, msg)
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return util.StatusWrapWithCode(err, codes.NotFound, msg)
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return util.StatusWrapWithCode(err, codes.FailedPrecondition, msg)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return util.StatusWrapWithCode(err, codes.NotFound, msg)
		case http.StatusUnauthorized, http.StatusForbidden:
			return util.StatusWrapWithCode(err, codes.PermissionDenied, msg)
		case http.StatusRequestEntityTooLarge:
			return util.StatusWrapWithCode(err, codes.ResourceExhausted, msg)
		}
	}
	return util.StatusWrapWithCode(err, codes.Unavailable, msg)
}

type gcsPartTransport struct {
	bucket        gcp.StorageBucketHandle
	keyPrefix     string
	uuidGenerator util.UUIDGenerator
}

// NewGCSPartTransport creates a PartTransport that stores every part
// as a separate object in a Google Cloud Storage bucket. Object names
// consist of a fixed prefix, followed by the locator.
func NewGCSPartTransport(bucket gcp.StorageBucketHandle, keyPrefix string, uuidGenerator util.UUIDGenerator) PartTransport {
	return &gcsPartTransport{
		bucket:        bucket,
		keyPrefix:     keyPrefix,
		uuidGenerator: uuidGenerator,
	}
}

func (pt *gcsPartTransport) getObject(locator string) gcp.StorageObjectHandle {
	return pt.bucket.Object(pt.keyPrefix + locator)
}

func (pt *gcsPartTransport) Upload(ctx context.Context, data []byte) (string, error) {
	id, err := pt.uuidGenerator()
	if err != nil {
		return "", util.StatusWrap(err, "Failed to generate locator")
	}
	locator := id.String()

	// Canceling the context is the only way to abort an upload
	// without committing the object.
	ctxWithCancel, cancel := context.WithCancel(ctx)
	defer cancel()
	w := pt.getObject(locator).NewWriter(ctxWithCancel)
	if _, err := w.Write(data); err != nil {
		cancel()
		w.Close()
		return "", convertGCSError(ctx, err, "Failed to write object")
	}
	if err := w.Close(); err != nil {
		return "", convertGCSError(ctx, err, "Failed to write object")
	}
	return locator, nil
}

func (pt *gcsPartTransport) Download(ctx context.Context, locator string) ([]byte, error) {
	r, err := pt.getObject(locator).NewReader(ctx)
	if err != nil {
		return nil, convertGCSError(ctx, err, "Failed to read object")
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, convertGCSError(ctx, err, "Failed to read object")
	}
	return data, nil
}

func (pt *gcsPartTransport) Delete(ctx context.Context, locator string) error {
	if err := pt.getObject(locator).Delete(ctx); err != nil {
		return convertGCSError(ctx, err, "Failed to delete object")
	}
	return nil
}
