package manifeststore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/google/uuid"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const localManifestExtension = ".json"

type localManifestStore struct {
	directory string
}

// NewLocalManifestStore creates a ManifestStore that stores every
// manifest as a JSON file in a local directory.
func NewLocalManifestStore(directory string) ManifestStore {
	return &localManifestStore{
		directory: directory,
	}
}

func (ms *localManifestStore) getPath(id string) (string, error) {
	// Only permit identifiers generated by the slicer, so that no
	// files outside the directory are accessed.
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return "", status.Errorf(codes.InvalidArgument, "Invalid manifest identifier %#v", id)
	}
	return filepath.Join(ms.directory, id+localManifestExtension), nil
}

func (ms *localManifestStore) Save(ctx context.Context, m *manifest.FileManifest) (string, error) {
	path, err := ms.getPath(m.ID)
	if err != nil {
		return "", err
	}
	data, err := encodeForSaving(m)
	if err != nil {
		return "", err
	}
	temporaryPath := path + ".tmp"
	if err := os.WriteFile(temporaryPath, data, 0o644); err != nil {
		os.Remove(temporaryPath)
		return "", util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to write manifest file %#v", temporaryPath)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return "", util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to rename manifest file %#v", temporaryPath)
	}
	return m.ID, nil
}

func (ms *localManifestStore) Load(ctx context.Context, id string) (*manifest.FileManifest, error) {
	path, err := ms.getPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newNotFoundError(id)
		}
		return nil, util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to read manifest file %#v", path)
	}
	m, err := manifest.Unmarshal(data)
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to unmarshal manifest file %#v", path)
	}
	return m, nil
}

func (ms *localManifestStore) Delete(ctx context.Context, id string) error {
	path, err := ms.getPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return newNotFoundError(id)
		}
		return util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to remove manifest file %#v", path)
	}
	return nil
}

func (ms *localManifestStore) List(ctx context.Context, filter Filter) ([]manifest.Summary, error) {
	entries, err := os.ReadDir(ms.directory)
	if err != nil {
		return nil, util.StatusWrapfWithCode(err, codes.Unavailable, "Failed to read manifest directory %#v", ms.directory)
	}
	summaries := []manifest.Summary{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, localManifestExtension) {
			continue
		}
		if err := util.StatusFromContext(ctx); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(name, localManifestExtension)
		if _, err := ms.getPath(id); err != nil {
			continue
		}
		m, err := ms.Load(ctx, id)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				// Deleted while listing.
				continue
			}
			return nil, err
		}
		if summary := m.GetSummary(); filter.Matches(&summary) {
			summaries = append(summaries, summary)
		}
	}
	sortSummaries(summaries)
	return summaries, nil
}
