package bunx

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered id. Rows inserted later sort later, which keeps the cache
// table's primary key index append-mostly on both dialects.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
