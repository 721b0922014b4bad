package cmd

import (
	"fmt"
	"strconv"

	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var termsCmd = &cobra.Command{
	Use:   "terms",
	Short: "List the terms known to the portal",
	Long:  `Lists the terms offered by the portal, newest first. The ID column is what --term expects.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := MustFromContext(cmd.Context())
		s, err := app.OpenSession(cmd.Context(), relogin)
		if err != nil {
			return err
		}
		defer app.Persist(s)

		terms, err := s.ListTerms(cmd.Context(), force)
		if err != nil {
			return fmt.Errorf("failed to list terms: %w", err)
		}
		if len(terms) == 0 {
			pterm.Info.WithWriter(cmd.OutOrStdout()).Println("The portal lists no terms.")
			return nil
		}
		table := pterm.TableData{{"ID", "TERM"}}
		for _, t := range terms {
			table = append(table, []string{strconv.Itoa(t.ID), t.Label})
		}
		return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(table).Render()
	},
}

var coursesTerm int

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List the courses of a term",
	Long: `Lists the courses of a term. --term takes an ID from "ohmyddl terms",
-1 for the current term (default) or 0 for all terms.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := MustFromContext(cmd.Context())
		s, err := app.OpenSession(cmd.Context(), relogin)
		if err != nil {
			return err
		}
		defer app.Persist(s)

		courses, err := s.ListCourses(cmd.Context(), coursesTerm, force)
		if err != nil {
			return fmt.Errorf("failed to list courses: %w", err)
		}
		table := pterm.TableData{{"SEQ", "COURSE", "TEACHER", "URL"}}
		for _, c := range courses {
			table = append(table, []string{c.Seq, app.Aliases.Lookup(c.Name), c.Teacher, c.PageURL})
		}
		return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(table).Render()
	},
}

var worksPendingOnly bool

var worksCmd = &cobra.Command{
	Use:   "works <course-url>",
	Short: "List the assignments of a course",
	Long:  `Lists every assignment of the course whose page URL is given (see the URL column of "ohmyddl courses").`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := MustFromContext(cmd.Context())
		s, err := app.OpenSession(cmd.Context(), relogin)
		if err != nil {
			return err
		}
		defer app.Persist(s)

		works, err := s.ListAssignments(cmd.Context(), args[0], force)
		if err != nil {
			return fmt.Errorf("failed to list assignments: %w", err)
		}
		table := pterm.TableData{{"NAME", "START", "END", "STATUS"}}
		for _, w := range works {
			if worksPendingOnly && !w.Pending() {
				continue
			}
			table = append(table, []string{w.Name, formatTime(w.Start), formatTime(w.End), w.Status})
		}
		return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(table).Render()
	},
}

func init() {
	coursesCmd.Flags().IntVar(&coursesTerm, "term", sdk.CurrentTerm, "Term ID, -1 for the current term, 0 for all")
	worksCmd.Flags().BoolVar(&worksPendingOnly, "pending", false, "Only show assignments still to do")
}
