package ports

import "github.com/google/uuid"

// IDGenerator hands out beacon identifiers.
type IDGenerator interface {
	// Next returns a fresh ephemeral ID and the next stable sequence number.
	Next() (uuid.UUID, uint64)
}
