package migrations

import (
	"context"
	"fmt"
	"log"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000000, down_20261001000000)
}

// up_20261001000000 creates the cache_entries table
func up_20261001000000(ctx context.Context, db *bun.DB) error {
	log.Printf("[up] creating cache_entries table")

	_, err := db.NewCreateTable().
		Model((*models.CacheEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create cache_entries table: %w", err)
	}

	// upserts conflict on this pair
	_, err = db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_cache_entries_account_key ON cache_entries(account_id, cache_key)
	`)
	if err != nil {
		return fmt.Errorf("failed to create cache_entries key index: %w", err)
	}

	// prune scans by age
	_, err = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_cache_entries_written_at ON cache_entries(written_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create cache_entries written_at index: %w", err)
	}

	return nil
}

// down_20261001000000 drops the cache_entries table
func down_20261001000000(ctx context.Context, db *bun.DB) error {
	log.Printf("[down] dropping cache_entries table")

	_, err := db.NewDropTable().
		Model((*models.CacheEntry)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop cache_entries table: %w", err)
	}

	return nil
}
