package manifeststore

import (
	"context"
	"sync"

	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/util"
)

type memoryManifestStore struct {
	lock      sync.RWMutex
	manifests map[string][]byte
}

// NewMemoryManifestStore creates a ManifestStore that keeps manifests
// in memory. Manifests are stored in serialized form, so that callers
// cannot modify stored manifests.
func NewMemoryManifestStore() ManifestStore {
	return &memoryManifestStore{
		manifests: map[string][]byte{},
	}
}

func (ms *memoryManifestStore) Save(ctx context.Context, m *manifest.FileManifest) (string, error) {
	data, err := encodeForSaving(m)
	if err != nil {
		return "", err
	}
	ms.lock.Lock()
	ms.manifests[m.ID] = data
	ms.lock.Unlock()
	return m.ID, nil
}

func (ms *memoryManifestStore) Load(ctx context.Context, id string) (*manifest.FileManifest, error) {
	ms.lock.RLock()
	data, ok := ms.manifests[id]
	ms.lock.RUnlock()
	if !ok {
		return nil, newNotFoundError(id)
	}
	return manifest.Unmarshal(data)
}

func (ms *memoryManifestStore) Delete(ctx context.Context, id string) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	if _, ok := ms.manifests[id]; !ok {
		return newNotFoundError(id)
	}
	delete(ms.manifests, id)
	return nil
}

func (ms *memoryManifestStore) List(ctx context.Context, filter Filter) ([]manifest.Summary, error) {
	ms.lock.RLock()
	defer ms.lock.RUnlock()
	summaries := []manifest.Summary{}
	for id, data := range ms.manifests {
		m, err := manifest.Unmarshal(data)
		if err != nil {
			return nil, util.StatusWrapf(err, "Failed to unmarshal manifest %#v", id)
		}
		if summary := m.GetSummary(); filter.Matches(&summary) {
			summaries = append(summaries, summary)
		}
	}
	sortSummaries(summaries)
	return summaries, nil
}
