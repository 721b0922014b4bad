package cmd

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/migrations"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/repository"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Shared result cache management commands",
	Long: `Commands for the database named by --cache-dsn, which holds fetched results
shared by every session instead of keeping them inside each session file.`,
}

var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the cache schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := MustFromContext(cmd.Context())
		db, err := app.CacheDB(cmd.Context())
		if err != nil {
			return err
		}

		group, err := migrations.Apply(cmd.Context(), db)
		if err != nil {
			return err
		}
		if group.ID == 0 {
			log.Printf("No new migrations to apply")
		} else {
			log.Printf("Applied migration group %d", group.ID)
		}
		return nil
	},
}

var pruneOlderThan time.Duration

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached results older than a cutoff",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		app := MustFromContext(cmd.Context())
		repo, err := app.CacheRepository(cmd.Context())
		if err != nil {
			return err
		}
		if repo == nil {
			_, err := app.CacheDB(cmd.Context())
			return err
		}

		n, err := repo.Prune(cmd.Context(), time.Now().Add(-pruneOlderThan))
		if err != nil {
			return err
		}
		pterm.Success.WithWriter(cmd.OutOrStdout()).Printf("Pruned %d cached results older than %s\n", n, pruneOlderThan)
		return nil
	},
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status and cached results per operation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := MustFromContext(cmd.Context())
		db, err := app.CacheDB(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		migrator := migrate.NewMigrator(db, migrations.Migrations)
		if err := migrator.Init(cmd.Context()); err != nil {
			return fmt.Errorf("failed to initialize migrator: %w", err)
		}
		ms, err := migrator.MigrationsWithStatus(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}

		pending := 0
		pterm.DefaultSection.WithWriter(out).Println("Migrations")
		for _, m := range ms {
			status := "pending"
			if m.GroupID > 0 {
				status = fmt.Sprintf("applied (group %d)", m.GroupID)
			} else {
				pending++
			}
			fmt.Fprintf(out, "  %s: %s\n", m.Name, status)
		}
		if pending > 0 {
			pterm.Warning.WithWriter(out).Println(`Schema is not up to date, run "ohmyddl cache migrate"`)
			return nil
		}

		stats, err := repository.NewBunCacheRepository(db).Stats(cmd.Context())
		if err != nil {
			return err
		}
		pterm.DefaultSection.WithWriter(out).Println("Cached results")
		if len(stats) == 0 {
			pterm.Info.WithWriter(out).Println("The cache is empty.")
			return nil
		}
		table := pterm.TableData{{"OPERATION", "ENTRIES", "NEWEST"}}
		for _, s := range stats {
			table = append(table, []string{s.Operation, strconv.Itoa(s.Entries), s.Newest.Local().Format(timeLayout)})
		}
		return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(table).Render()
	},
}

func init() {
	cachePruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 24*time.Hour, "Age above which cached results are deleted")

	cacheCmd.AddCommand(cacheMigrateCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
}
