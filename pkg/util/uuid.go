package util

import (
	"github.com/google/uuid"
)

// UUIDGenerator is equal to the signature of the UUID library's UUID
// generation functions. It is used to generate manifest identifiers
// and part locators, and is injectable so that unit tests can use
// predictable values.
type UUIDGenerator func() (uuid.UUID, error)

var _ UUIDGenerator = uuid.NewRandom
