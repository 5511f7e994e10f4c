package gcp

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// StorageClient contains the methods of the Google Cloud SDK's
// storage.Client type that are used by this code base. This interface
// has been added to permit unit testing.
type StorageClient interface {
	Bucket(name string) StorageBucketHandle
}

type wrappedStorageClient struct {
	impl *storage.Client
}

// NewWrappedStorageClient converts a concrete instance of
// storage.Client to the StorageClient interface, so that it can be used
// in code that can be unit tested.
func NewWrappedStorageClient(impl *storage.Client) StorageClient {
	return wrappedStorageClient{
		impl: impl,
	}
}

func (w wrappedStorageClient) Bucket(name string) StorageBucketHandle {
	return wrappedStorageBucketHandle{
		impl: w.impl.Bucket(name),
	}
}

// StorageBucketHandle contains the methods of the Google Cloud SDK's
// storage.BucketHandle type that are used by this code base. This
// interface has been added to permit unit testing.
type StorageBucketHandle interface {
	Object(name string) StorageObjectHandle
}

type wrappedStorageBucketHandle struct {
	impl *storage.BucketHandle
}

func (w wrappedStorageBucketHandle) Object(name string) StorageObjectHandle {
	return wrappedStorageObjectHandle{
		impl: w.impl.Object(name),
	}
}

// StorageObjectHandle contains the methods of the Google Cloud SDK's
// storage.ObjectHandle type that are used by this code base. This
// interface has been added to permit unit testing.
type StorageObjectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) io.WriteCloser
	Delete(ctx context.Context) error
}

type wrappedStorageObjectHandle struct {
	impl *storage.ObjectHandle
}

func (w wrappedStorageObjectHandle) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return w.impl.NewReader(ctx)
}

func (w wrappedStorageObjectHandle) NewWriter(ctx context.Context) io.WriteCloser {
	// Objects are never overwritten, as every part is stored under a
	// freshly generated name.
	return w.impl.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
}

func (w wrappedStorageObjectHandle) Delete(ctx context.Context) error {
	return w.impl.Delete(ctx)
}
