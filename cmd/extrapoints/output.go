package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/gradpush/extrapoints/internal/models"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return strconv.FormatFloat(*score, 'f', -1, 64)
}

func printApplications(out io.Writer, apps []models.Application) error {
	if len(apps) == 0 {
		fmt.Fprintln(out, "No applications")
		return nil
	}
	w := newTable(out)
	fmt.Fprintln(w, "ID\tSTUDENT\tNAME\tTYPE\tPROJECT\tSTATUS\tSELF\tFINAL\tAPPLIED")
	for _, app := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			app.ID, app.StudentID, app.StudentName, app.ApplicationType, app.ProjectName,
			app.Status, formatScore(app.SelfScore), formatScore(app.FinalScore), app.SubmittedAt())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d application(s)\n", len(apps))
	return nil
}

func printApplication(out io.Writer, app *models.Application) error {
	w := newTable(out)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%s:\t%s\n", label, value)
		}
	}
	row("ID", app.ID.String())
	row("Student", app.StudentID+" "+app.StudentName)
	row("Type", app.ApplicationType)
	row("Project", app.ProjectName)
	row("Description", app.Description)
	row("Award level", app.AwardLevel)
	row("Award date", app.AwardDate)
	row("Status", string(app.Status))
	row("Self score", formatScore(app.SelfScore))
	row("Final score", formatScore(app.FinalScore))
	row("Reviewed by", app.ReviewedBy)
	row("Reviewed at", string(app.ReviewedAt))
	row("Comment", app.ReviewComment)
	row("Applied at", string(app.SubmittedAt()))
	for _, f := range app.Files {
		row("File", f.Name+" "+f.Path)
	}
	return w.Flush()
}
