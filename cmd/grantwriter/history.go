package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aristath/grantwriter/internal/persistence"
	"github.com/aristath/grantwriter/internal/report"
)

var errNoArchive = errors.New("no archive given (use --archive or GRANTWRITER_ARCHIVE)")

func (a *app) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List archived runs, newest first",
		Args:    cobra.NoArgs,
		PreRunE: a.bindFlags,
		RunE:    a.listRuns,
	}
	cmd.Flags().String("archive", "", "SQLite run archive")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 lists all)")
	return cmd
}

func (a *app) newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show RUN_ID",
		Short:   "Print an archived run",
		Long:    "Print an archived run. RUN_ID may be any unique prefix of the run's ID.",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.bindFlags,
		RunE:    a.showRun,
	}
	cmd.Flags().String("archive", "", "SQLite run archive")
	cmd.Flags().String("format", "text", "Output format: text, markdown, json, yaml, csv")
	return cmd
}

func (a *app) openArchive(cmd *cobra.Command) (*persistence.SQLiteStore, error) {
	path := a.v.GetString("archive")
	if path == "" {
		return nil, errNoArchive
	}
	return persistence.NewSQLiteStore(cmd.Context(), path)
}

func (a *app) listRuns(cmd *cobra.Command, _ []string) error {
	store, err := a.openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), a.v.GetInt("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No archived runs.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.OrgName,
			r.Status,
			strconv.Itoa(r.Succeeded) + "/" + strconv.Itoa(r.Sections),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("RUN", "STARTED", "ORGANIZATION", "STATUS", "TASKS", "DURATION").
		Rows(rows...)
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func (a *app) showRun(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(a.v.GetString("format"))
	if err != nil {
		return err
	}

	store, err := a.openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return report.Write(cmd.OutOrStdout(), out, format)
}

// shortID abbreviates a run ID the way it can be passed back to show.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
