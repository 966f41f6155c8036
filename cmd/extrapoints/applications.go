package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gradpush/extrapoints/internal/models"
)

// filterFlags binds the common application filters to fs
func filterFlags(fs *flag.FlagSet) *models.Filter {
	f := &models.Filter{}
	fs.StringVar(&f.StudentID, "student", "", "student id (substring)")
	fs.StringVar(&f.StudentName, "name", "", "student name (substring)")
	fs.StringVar(&f.FacultyID, "faculty", "", "faculty id")
	fs.StringVar(&f.DepartmentID, "department", "", "department id")
	fs.StringVar(&f.MajorID, "major", "", "major id")
	fs.StringVar(&f.Status, "status", "", "pending, approved, rejected or all")
	fs.StringVar(&f.ApplicationType, "type", "", "application type")
	fs.StringVar(&f.ReviewedBy, "reviewer", "", "reviewer (substring)")
	fs.StringVar(&f.StartDate, "from", "", "applied on or after (YYYY-MM-DD)")
	fs.StringVar(&f.EndDate, "to", "", "applied on or before (YYYY-MM-DD)")
	return f
}

func (cli *commandLine) list(ctx context.Context, args []string) error {
	fs := cli.flagSet("list", "[filters]")
	f := filterFlags(fs)
	mine := fs.Bool("mine", false, "only applications I reviewed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := cli.requireSession(ctx)
	if err != nil {
		return err
	}

	apps, err := cli.apps.FetchAll(ctx, *f)
	if err != nil {
		return cli.storeError()
	}
	if *mine {
		apps = cli.apps.Filter(models.Filter{MyReviewsOnly: user.Username})
	}
	return printApplications(cli.out, apps)
}

func (cli *commandLine) pending(ctx context.Context, args []string) error {
	fs := cli.flagSet("pending", "[filters]")
	f := filterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}

	apps, err := cli.apps.FetchPending(ctx, *f)
	if err != nil {
		return cli.storeError()
	}
	return printApplications(cli.out, apps)
}

func (cli *commandLine) show(ctx context.Context, args []string) error {
	fs := cli.flagSet("show", "ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleID(fs)
	if err != nil {
		return err
	}
	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}

	app, err := cli.apps.GetByID(ctx, id)
	if err != nil {
		return cli.storeError()
	}
	return printApplication(cli.out, app)
}

func (cli *commandLine) create(ctx context.Context, args []string) error {
	fs := cli.flagSet("create", "-type TYPE -project NAME [-file PATH]...")
	app := models.Application{}
	fs.StringVar(&app.ApplicationType, "type", "", "application type, e.g. competition or paper")
	fs.StringVar(&app.ProjectName, "project", "", "project or award name")
	fs.StringVar(&app.Description, "description", "", "description")
	fs.StringVar(&app.AwardLevel, "award-level", "", "award level")
	fs.StringVar(&app.AwardDate, "award-date", "", "award date (YYYY-MM-DD)")
	rule := fs.String("rule", "", "scoring rule id")
	var selfScore optionalFloat
	fs.Var(&selfScore, "self-score", "self-assessed score")
	var paths stringList
	fs.Var(&paths, "file", "attachment to upload, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if app.ApplicationType == "" {
		fs.Usage()
		return errHelp
	}
	user, err := cli.requireSession(ctx)
	if err != nil {
		return err
	}

	app.StudentID = user.StudentID
	app.StudentName = user.DisplayName()
	app.FacultyID = user.FacultyID
	app.DepartmentID = user.DepartmentID
	app.MajorID = user.MajorID
	app.RuleID = models.ID(*rule)
	app.SelfScore = selfScore.value

	var files []models.Attachment
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open attachment: %w", err)
		}
		defer f.Close()
		files = append(files, models.UploadAttachment(filepath.Base(path), f))
	}

	id, ok := cli.apps.Create(ctx, app, files)
	if !ok {
		return cli.storeError()
	}
	fmt.Fprintf(cli.out, "Application %s submitted\n", id)
	return nil
}

func (cli *commandLine) review(ctx context.Context, args []string) error {
	fs := cli.flagSet("review", "-status approved|rejected [-score N] [-comment TEXT] ID")
	status := fs.String("status", "", "approved or rejected")
	comment := fs.String("comment", "", "review comment")
	var score optionalFloat
	fs.Var(&score, "score", "final score; approval defaults to the self score")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleID(fs)
	if err != nil {
		return err
	}
	return cli.decide(ctx, id, models.Status(*status), score.value, *comment)
}

func (cli *commandLine) approve(ctx context.Context, args []string) error {
	fs := cli.flagSet("approve", "[-score N] [-comment TEXT] ID")
	comment := fs.String("comment", "", "review comment")
	var score optionalFloat
	fs.Var(&score, "score", "final score; defaults to the self score")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleID(fs)
	if err != nil {
		return err
	}
	return cli.decide(ctx, id, models.StatusApproved, score.value, *comment)
}

func (cli *commandLine) reject(ctx context.Context, args []string) error {
	fs := cli.flagSet("reject", "[-comment TEXT] ID")
	comment := fs.String("comment", "", "review comment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleID(fs)
	if err != nil {
		return err
	}
	zero := 0.0
	return cli.decide(ctx, id, models.StatusRejected, &zero, *comment)
}

func (cli *commandLine) decide(ctx context.Context, id models.ID, status models.Status, score *float64, comment string) error {
	user, err := cli.requireSession(ctx)
	if err != nil {
		return err
	}

	ok := cli.apps.Review(ctx, id, models.ReviewDecision{
		Status:     status,
		Comment:    comment,
		FinalScore: score,
		ReviewedBy: user.Username,
	})
	if !ok {
		return cli.storeError()
	}
	fmt.Fprintf(cli.out, "Application %s %s\n", id, status)
	return nil
}

func (cli *commandLine) deleteApplication(ctx context.Context, args []string) error {
	fs := cli.flagSet("delete", "ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleID(fs)
	if err != nil {
		return err
	}
	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}

	if !cli.apps.Delete(ctx, id) {
		return cli.storeError()
	}
	fmt.Fprintf(cli.out, "Application %s deleted\n", id)
	return nil
}

func (cli *commandLine) stats(ctx context.Context, args []string) error {
	fs := cli.flagSet("stats", "[-student ID]")
	studentID := fs.String("student", "", "student id, defaults to the logged-in student")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := cli.requireSession(ctx)
	if err != nil {
		return err
	}
	if *studentID == "" {
		*studentID = user.StudentID
	}
	if *studentID == "" {
		fs.Usage()
		return errHelp
	}

	stats, err := cli.apps.FetchStatistics(ctx, *studentID)
	if err != nil {
		return cli.storeError()
	}

	w := newTable(cli.out)
	fmt.Fprintf(w, "Student:\t%s %s\n", stats.StudentID, stats.StudentName)
	fmt.Fprintf(w, "Applications:\t%d (approved %d, rejected %d, pending %d)\n",
		stats.Total, stats.Approved, stats.Rejected, stats.Pending)
	fmt.Fprintf(w, "Total score:\t%s\n", formatScore(&stats.TotalScore))
	fmt.Fprintf(w, "Average score:\t%.2f\n", stats.AverageScore)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(stats.Recent) > 0 {
		fmt.Fprintln(cli.out)
		w = newTable(cli.out)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSCORE\tAPPLIED")
		for _, r := range stats.Recent {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Type, r.Status, formatScore(r.Score), r.AppliedAt)
		}
		return w.Flush()
	}
	return nil
}

func (cli *commandLine) ranking(ctx context.Context, args []string) error {
	fs := cli.flagSet("ranking", "[-faculty ID] [-department ID] [-major ID]")
	f := models.RankingFilter{}
	fs.StringVar(&f.FacultyID, "faculty", "", "faculty id")
	fs.StringVar(&f.DepartmentID, "department", "", "department id")
	fs.StringVar(&f.MajorID, "major", "", "major id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}

	entries, err := cli.apps.FetchStudentsRanking(ctx, f)
	if err != nil {
		return cli.storeError()
	}
	if len(entries) == 0 {
		fmt.Fprintln(cli.out, "No approved applications")
		return nil
	}

	w := newTable(cli.out)
	fmt.Fprintln(w, "RANK\tSTUDENT\tNAME\tAPPROVED\tSCORE")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", e.Rank, e.StudentID, e.StudentName, e.ApprovedCount, formatScore(&e.TotalScore))
	}
	return w.Flush()
}
