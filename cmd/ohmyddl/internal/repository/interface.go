package repository

import (
	"context"
	"time"

	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
)

// CacheRepository is the database-backed result cache. It satisfies sdk.CacheStore so sessions
// can use it directly, and adds the maintenance operations the CLI exposes.
type CacheRepository interface {
	sdk.CacheStore

	// DeleteByAccount removes every entry of one account and returns the number removed
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)

	// Prune removes entries written before cutoff
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats summarises the stored entries per operation, ordered by operation name
	Stats(ctx context.Context) ([]OperationStats, error)
}

// OperationStats counts the entries stored for one operation.
type OperationStats struct {
	Operation string    `bun:"operation"`
	Entries   int       `bun:"entries"`
	Newest    time.Time `bun:"newest"`
}
