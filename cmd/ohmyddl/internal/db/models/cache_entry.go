package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CacheEntry is one cached portal result shared by every process pointed at the same cache DSN.
// Rows are unique per (account_id, cache_key).
type CacheEntry struct {
	bun.BaseModel `bun:"table:cache_entries,alias:ce"`

	ID        string    `bun:"id,pk,type:uuid"`
	AccountID string    `bun:"account_id,notnull"`
	CacheKey  string    `bun:"cache_key,notnull"`
	Operation string    `bun:"operation,notnull"`
	Value     []byte    `bun:"value,notnull"`
	WrittenAt time.Time `bun:"written_at,notnull"`
}
