package cadence

import "github.com/xraph/cadence/id"

// ID is the primary identifier type for all Cadence entities.
type ID = id.ID

// Prefix identifies the entity type encoded in an ID.
type Prefix = id.Prefix
