package aliases

import (
	"github.com/google/uuid"
)

// This file contains interfaces for function types that are used as
// callbacks. The only reason this file exists is to allow mockgen to
// emit mocks for them, as it is only capable of emitting mocks for
// interfaces. Tests pass the Call method of the resulting mock.

// UUIDGenerator corresponds to util.UUIDGenerator.
type UUIDGenerator interface {
	Call() (uuid.UUID, error)
}
