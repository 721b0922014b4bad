package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session and whether the portal still accepts it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := MustFromContext(cmd.Context())
		out := cmd.OutOrStdout()
		path := app.Config.SessionFile

		opts, err := app.sessionOptions(cmd.Context())
		if err != nil {
			return err
		}
		s, err := sdk.LoadSession(path, opts...)
		if errors.Is(err, fs.ErrNotExist) {
			pterm.Info.WithWriter(out).Printf("No saved session at %s\n", path)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read session file: %w", err)
		}

		refreshed := "never"
		if t := s.LastRefreshedAt(); !t.IsZero() {
			refreshed = t.Local().Format(timeLayout)
		}
		_ = pterm.DefaultTable.WithWriter(out).WithData(pterm.TableData{
			{"Account", s.Credential().AccountID},
			{"Session file", s.Provenance()},
			{"Last refreshed", refreshed},
		}).Render()

		ok, err := s.Probe(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			pterm.Warning.WithWriter(out).Println("The portal no longer accepts this session; the next run logs in again.")
			return nil
		}
		pterm.Success.WithWriter(out).Println("Session is valid.")
		app.Persist(s)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Long: `Deletes the session file, including the stored password. With a shared cache
configured, the account's cached results are deleted too.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := MustFromContext(cmd.Context())
		out := cmd.OutOrStdout()
		path := app.Config.SessionFile

		s, err := sdk.LoadSession(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			pterm.Info.WithWriter(out).Printf("No saved session at %s\n", path)
			return nil
		case err != nil:
			pterm.Warning.WithWriter(out).Printf("Removing unreadable session file %s: %v\n", path, err)
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}

		if s != nil {
			repo, err := app.CacheRepository(cmd.Context())
			if err != nil {
				return err
			}
			if repo != nil {
				n, err := repo.DeleteByAccount(cmd.Context(), s.Credential().AccountID)
				if err != nil {
					return err
				}
				app.Logger.Debug("purged cached results", "account", s.Credential().AccountID, "entries", n)
			}
		}

		pterm.Success.WithWriter(out).Println("Logged out.")
		return nil
	},
}
