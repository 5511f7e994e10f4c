// Package manifeststore provides implementations of ManifestStore,
// which is used to persist manifests of files whose parts have been
// uploaded, so that they can be shared and downloaded later on.
package manifeststore

import (
	"context"
	"sort"
	"strings"

	"github.com/buildbarn/bb-splitter/pkg/manifest"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ManifestStore persists manifests.
//
// No transactional guarantees are provided across the store and the
// transport holding the parts. Implementations are responsible for
// access control, if any.
type ManifestStore interface {
	// Save a manifest, returning the identifier under which it can
	// be loaded. Saving a manifest with an identifier that already
	// exists replaces it. Only manifests of which all parts have
	// been uploaded may be saved.
	Save(ctx context.Context, m *manifest.FileManifest) (string, error)
	Load(ctx context.Context, id string) (*manifest.FileManifest, error)
	Delete(ctx context.Context, id string) error
	// List summaries of manifests matching a filter, sorted by
	// original name.
	List(ctx context.Context, filter Filter) ([]manifest.Summary, error)
}

// Filter of manifests returned by ManifestStore.List(). Empty fields
// match all manifests.
type Filter struct {
	// Only match manifests created by a given owner.
	Owner string
	// Only match manifests whose original name contains a given
	// string, ignoring case.
	NameSubstring string
}

// Matches returns whether a manifest summary matches the filter.
func (f *Filter) Matches(summary *manifest.Summary) bool {
	return (f.Owner == "" || summary.Owner == f.Owner) &&
		(f.NameSubstring == "" || strings.Contains(strings.ToLower(summary.OriginalName), strings.ToLower(f.NameSubstring)))
}

// sortSummaries sorts summaries by original name. Manifests with
// identical names are sorted by identifier, so that the order is
// stable across calls.
func sortSummaries(summaries []manifest.Summary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].OriginalName != summaries[j].OriginalName {
			return summaries[i].OriginalName < summaries[j].OriginalName
		}
		return summaries[i].ID < summaries[j].ID
	})
}

// encodeForSaving validates that a manifest may be persisted and
// converts it to its serialized form.
func encodeForSaving(m *manifest.FileManifest) ([]byte, error) {
	if !m.IsComplete() {
		return nil, status.Errorf(codes.FailedPrecondition, "Manifest %#v has %d of %d parts uploaded", m.ID, m.GetUploadedPartsCount(), len(m.Parts))
	}
	return manifest.Marshal(m)
}

func newNotFoundError(id string) error {
	return status.Errorf(codes.NotFound, "Manifest %#v not found", id)
}
