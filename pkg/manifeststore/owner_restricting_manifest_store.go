package manifeststore

import (
	"context"

	"github.com/buildbarn/bb-splitter/pkg/manifest"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ownerRestrictingManifestStore struct {
	base  ManifestStore
	owner string
}

// NewOwnerRestrictingManifestStore creates a decorator for
// ManifestStore that only grants access to manifests of a single
// owner. Listings are implicitly limited to manifests of that owner.
func NewOwnerRestrictingManifestStore(base ManifestStore, owner string) ManifestStore {
	return &ownerRestrictingManifestStore{
		base:  base,
		owner: owner,
	}
}

func (ms *ownerRestrictingManifestStore) checkOwner(m *manifest.FileManifest) error {
	if m.Owner != ms.owner {
		return status.Errorf(codes.PermissionDenied, "Manifest %#v is not owned by %#v", m.ID, ms.owner)
	}
	return nil
}

func (ms *ownerRestrictingManifestStore) Save(ctx context.Context, m *manifest.FileManifest) (string, error) {
	if err := ms.checkOwner(m); err != nil {
		return "", err
	}
	return ms.base.Save(ctx, m)
}

func (ms *ownerRestrictingManifestStore) Load(ctx context.Context, id string) (*manifest.FileManifest, error) {
	m, err := ms.base.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ms.checkOwner(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (ms *ownerRestrictingManifestStore) Delete(ctx context.Context, id string) error {
	if _, err := ms.Load(ctx, id); err != nil {
		return err
	}
	return ms.base.Delete(ctx, id)
}

func (ms *ownerRestrictingManifestStore) List(ctx context.Context, filter Filter) ([]manifest.Summary, error) {
	if filter.Owner != "" && filter.Owner != ms.owner {
		return nil, status.Errorf(codes.PermissionDenied, "Not permitted to list manifests of owner %#v", filter.Owner)
	}
	filter.Owner = ms.owner
	return ms.base.List(ctx, filter)
}
