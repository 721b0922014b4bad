package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/db/bunx"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/db/models"
	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/uptrace/bun"
)

// BunCacheRepository implements CacheRepository using Bun ORM
type BunCacheRepository struct {
	db *bun.DB
}

var _ CacheRepository = (*BunCacheRepository)(nil)

// NewBunCacheRepository creates a new Bun-based cache repository
func NewBunCacheRepository(db *bun.DB) *BunCacheRepository {
	return &BunCacheRepository{db: db}
}

// Get returns the entry stored under key. A missing row is not an error.
func (r *BunCacheRepository) Get(ctx context.Context, key sdk.CacheKey) (sdk.CacheEntry, bool, error) {
	row := new(models.CacheEntry)
	err := r.db.NewSelect().
		Model(row).
		Where("account_id = ?", key.Account).
		Where("cache_key = ?", key.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sdk.CacheEntry{}, false, nil
		}
		return sdk.CacheEntry{}, false, fmt.Errorf("get cache entry %s: %w", key, err)
	}
	return sdk.CacheEntry{Value: row.Value, WrittenAt: row.WrittenAt}, true, nil
}

// Put inserts or replaces the entry stored under key.
func (r *BunCacheRepository) Put(ctx context.Context, key sdk.CacheKey, entry sdk.CacheEntry) error {
	row := &models.CacheEntry{
		ID:        bunx.NewUUIDv7(),
		AccountID: key.Account,
		CacheKey:  key.String(),
		Operation: key.Operation,
		Value:     entry.Value,
		WrittenAt: entry.WrittenAt.UTC(),
	}

	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (account_id, cache_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("written_at = EXCLUDED.written_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("put cache entry %s: %w", key, err)
	}
	return nil
}

func (r *BunCacheRepository) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.CacheEntry)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries of %s: %w", accountID, err)
	}
	return res.RowsAffected()
}

func (r *BunCacheRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.CacheEntry)(nil)).
		Where("written_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune cache entries: %w", err)
	}
	return res.RowsAffected()
}

func (r *BunCacheRepository) Stats(ctx context.Context) ([]OperationStats, error) {
	var stats []OperationStats
	err := r.db.NewSelect().
		Model((*models.CacheEntry)(nil)).
		Column("operation").
		ColumnExpr("COUNT(*) AS entries").
		ColumnExpr("MAX(written_at) AS newest").
		Group("operation").
		Order("operation ASC").
		Scan(ctx, &stats)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}
