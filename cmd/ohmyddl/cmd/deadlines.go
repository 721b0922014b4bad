package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/alias"
	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04"

// deadline is one pending assignment as shown in the default table.
type deadline struct {
	Name string
	End  *time.Time
}

// buildDeadlines pairs every pending assignment with its course alias. Rows are sorted by
// deadline with unknown deadlines last; idle lists the courses with nothing pending, in course order.
func buildDeadlines(courses []sdk.CourseInfo, works map[string][]sdk.WorkInfo, aliases *alias.Table) (rows []deadline, idle []string) {
	for _, c := range courses {
		name := aliases.Lookup(c.Name)
		pending := 0
		for _, w := range works[c.PageURL] {
			if !w.Pending() {
				continue
			}
			pending++
			rows = append(rows, deadline{Name: name + "-" + w.Name, End: w.End})
		}
		if pending == 0 {
			idle = append(idle, name)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].End, rows[j].End
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return rows, idle
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format(timeLayout)
}

func runDeadlines(cmd *cobra.Command, app *App) error {
	ctx := cmd.Context()
	s, err := app.OpenSession(ctx, relogin)
	if err != nil {
		return err
	}
	defer app.Persist(s)

	courses, err := s.ListCourses(ctx, sdk.CurrentTerm, force)
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}
	works := make(map[string][]sdk.WorkInfo, len(courses))
	for _, c := range courses {
		list, err := s.ListAssignments(ctx, c.PageURL, force)
		if err != nil {
			return fmt.Errorf("failed to list assignments of %s: %w", c.Name, err)
		}
		works[c.PageURL] = list
	}

	rows, idle := buildDeadlines(courses, works, app.Aliases)
	renderDeadlines(cmd.OutOrStdout(), s.Credential().AccountID, rows, idle)
	return nil
}

func renderDeadlines(out io.Writer, account string, rows []deadline, idle []string) {
	pterm.DefaultSection.WithWriter(out).Printf("Account %s", account)

	if len(rows) == 0 {
		pterm.Success.WithWriter(out).Println("Nothing left to do.")
	} else {
		table := pterm.TableData{{"NAME", "DEADLINE"}}
		for _, r := range rows {
			table = append(table, []string{r.Name, formatTime(r.End)})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(table).Render()
	}

	if len(idle) > 0 {
		pterm.Info.WithWriter(out).Printf("No unfinished work in %s\n", strings.Join(idle, "、"))
	}
}
