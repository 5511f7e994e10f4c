// Package transport provides implementations of PartTransport, the
// interface through which parts of a sliced file are stored on and
// retrieved from a remote host.
package transport

import (
	"context"
)

// PartTransport stores individual parts on a remote host.
//
// Implementations only deal with opaque byte payloads. They have no
// knowledge of manifests, part indices or checksums. Every call
// transfers exactly one part, so that both retries and time limits
// apply to a single part as opposed to a whole file.
//
// Errors are gRPC status errors. Implementations should return
// NotFound for locators that do not exist, and Unavailable or Internal
// for conditions that may resolve themselves when retried.
type PartTransport interface {
	// Upload stores a part and returns an opaque locator that can
	// be used to retrieve it later on. Every call stores a new copy
	// of the data under a fresh locator.
	Upload(ctx context.Context, data []byte) (string, error)
	// Download returns the contents of a previously uploaded part.
	Download(ctx context.Context, locator string) ([]byte, error)
	// Delete removes a previously uploaded part.
	Delete(ctx context.Context, locator string) error
}
