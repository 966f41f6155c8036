package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gradpush/extrapoints/internal/gradfiles"
	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/rules"
	"github.com/gradpush/extrapoints/pkg/client"
)

func (cli *commandLine) orgs(ctx context.Context, args []string) error {
	fs := cli.flagSet("orgs", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}

	faculties, err := cli.client.Faculties(ctx)
	if err != nil {
		return err
	}
	for _, faculty := range faculties {
		fmt.Fprintf(cli.out, "%s %s\n", faculty.ID, faculty.Name)
		departments, err := cli.client.Departments(ctx, faculty.ID)
		if err != nil {
			return err
		}
		for _, dept := range departments {
			fmt.Fprintf(cli.out, "  %s %s\n", dept.ID, dept.Name)
			majors, err := cli.client.Majors(ctx, dept.ID)
			if err != nil {
				return err
			}
			for _, major := range majors {
				fmt.Fprintf(cli.out, "    %s %s\n", major.ID, major.Name)
			}
		}
	}
	return nil
}

func (cli *commandLine) rulesImport(ctx context.Context, args []string) error {
	fs := cli.flagSet("rules-import", "[-dry-run] PATH")
	dryRun := fs.Bool("dry-run", false, "validate and list the rules without importing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errHelp
	}

	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	loader := rules.NewLoader(cli.logger)
	if info.IsDir() {
		err = loader.LoadFromDir(path)
	} else {
		_, err = loader.LoadFromFile(path)
	}
	if err != nil {
		return err
	}

	list := loader.List()
	if *dryRun {
		w := newTable(cli.out)
		fmt.Fprintln(w, "NAME\tTYPE\tLEVEL\tSCORE\tSTATUS")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Type, r.Level, formatScore(&r.Score), r.Status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d rule(s) valid\n", len(list))
		return nil
	}

	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}
	result, err := rules.Import(ctx, cli.client.Rules(), list, cli.logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "Created %d, skipped %d, failed %d\n", len(result.Created), len(result.Skipped), len(result.Failed))
	names := make([]string, 0, len(result.Failed))
	for name := range result.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cli.out, "  %s: %s\n", name, client.Message(result.Failed[name]))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d rule(s) failed to import", len(result.Failed))
	}
	return nil
}

func (cli *commandLine) files(ctx context.Context, args []string) error {
	fs := cli.flagSet("files", "[-faculty ID]")
	faculty := fs.String("faculty", "", "faculty id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}

	store := gradfiles.New(cli.client, cli.logger)
	files, err := store.Load(ctx, models.ID(*faculty))
	if err != nil {
		return fmt.Errorf("%s", store.Err())
	}
	if len(files) == 0 {
		fmt.Fprintln(cli.out, "No files")
		return nil
	}

	w := newTable(cli.out)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tSIZE\tUPLOADED BY\tUPLOADED AT")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", f.ID, f.Name, f.Category, f.Size, f.UploadedBy, f.UploadedAt)
	}
	return w.Flush()
}

func (cli *commandLine) uploadFiles(ctx context.Context, args []string) error {
	fs := cli.flagSet("upload-file", "[-faculty ID] [-category C] [-description D] PATH...")
	faculty := fs.String("faculty", "", "faculty id")
	category := fs.String("category", "", "category")
	description := fs.String("description", "", "description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errHelp
	}
	user, err := cli.requireSession(ctx)
	if err != nil {
		return err
	}

	uploads := make([]client.GraduateFileUpload, 0, fs.NArg())
	for _, path := range fs.Args() {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()
		uploads = append(uploads, client.GraduateFileUpload{
			File:        models.Upload{Name: filepath.Base(path), Content: f},
			Uploader:    user.Username,
			Description: *description,
			Category:    *category,
		})
	}

	store := gradfiles.New(cli.client, cli.logger)
	if !store.Upload(ctx, uploads, models.ID(*faculty)) {
		return fmt.Errorf("%s", store.Err())
	}
	fmt.Fprintf(cli.out, "Uploaded %d file(s)\n", len(uploads))
	return nil
}

func (cli *commandLine) deleteFile(ctx context.Context, args []string) error {
	fs := cli.flagSet("delete-file", "ID")
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

	store := gradfiles.New(cli.client, cli.logger)
	if !store.Delete(ctx, id) {
		return fmt.Errorf("%s", store.Err())
	}
	fmt.Fprintf(cli.out, "File %s deleted\n", id)
	return nil
}
