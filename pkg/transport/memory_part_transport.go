package transport

import (
	"context"
	"sync"

	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type memoryPartTransport struct {
	uuidGenerator util.UUIDGenerator

	lock  sync.RWMutex
	parts map[string][]byte
}

// NewMemoryPartTransport creates a PartTransport that stores parts in
// memory. Contents are lost when the process terminates. This
// implementation is used for testing and for round-tripping files
// within a single process.
func NewMemoryPartTransport(uuidGenerator util.UUIDGenerator) PartTransport {
	return &memoryPartTransport{
		uuidGenerator: uuidGenerator,
		parts:         map[string][]byte{},
	}
}

func (pt *memoryPartTransport) Upload(ctx context.Context, data []byte) (string, error) {
	if err := util.StatusFromContext(ctx); err != nil {
		return "", err
	}
	id, err := pt.uuidGenerator()
	if err != nil {
		return "", util.StatusWrap(err, "Failed to generate locator")
	}
	locator := id.String()

	pt.lock.Lock()
	pt.parts[locator] = append([]byte{}, data...)
	pt.lock.Unlock()
	return locator, nil
}

func (pt *memoryPartTransport) Download(ctx context.Context, locator string) ([]byte, error) {
	if err := util.StatusFromContext(ctx); err != nil {
		return nil, err
	}
	pt.lock.RLock()
	data, ok := pt.parts[locator]
	pt.lock.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Part with locator %#v not found", locator)
	}
	return append([]byte{}, data...), nil
}

func (pt *memoryPartTransport) Delete(ctx context.Context, locator string) error {
	if err := util.StatusFromContext(ctx); err != nil {
		return err
	}
	pt.lock.Lock()
	defer pt.lock.Unlock()
	if _, ok := pt.parts[locator]; !ok {
		return status.Errorf(codes.NotFound, "Part with locator %#v not found", locator)
	}
	delete(pt.parts, locator)
	return nil
}
