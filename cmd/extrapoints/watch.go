package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/watch"
)

func (cli *commandLine) watch(ctx context.Context, args []string) error {
	fs := cli.flagSet("watch", "[-interval D] [-events] [filters]")
	f := filterFlags(fs)
	interval := fs.Duration("interval", cli.cfg.Watch.Interval, "refresh interval")
	events := fs.Bool("events", false, "also refresh when the backend pushes a change")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}

	poller := watch.NewPoller(cli.apps, *f, *interval, cli.printChange, cli.logger)

	if *events {
		go func() {
			err := cli.client.SubscribeEvents(ctx, func(e models.Event) {
				cli.logger.Debug("event received", "type", e.Type, "id", e.ApplicationID)
				poller.Notify()
			})
			if err != nil {
				cli.logger.Warn("event feed stopped, polling only", "error", err)
			}
		}()
	}

	fmt.Fprintf(cli.out, "Watching pending applications every %s (Ctrl+C to stop)\n", *interval)
	poller.Run(ctx)
	return nil
}

func (cli *commandLine) printChange(c watch.Change) {
	stamp := time.Now().Format("15:04:05")
	fmt.Fprintf(cli.out, "[%s] %d pending", stamp, len(c.Pending))
	if len(c.Added) > 0 {
		fmt.Fprintf(cli.out, ", new: %v", c.Added)
	}
	if len(c.Removed) > 0 {
		fmt.Fprintf(cli.out, ", done: %v", c.Removed)
	}
	fmt.Fprintln(cli.out)
}
