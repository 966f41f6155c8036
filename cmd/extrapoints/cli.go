package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/gradpush/extrapoints/internal/applications"
	"github.com/gradpush/extrapoints/internal/config"
	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/session"
	"github.com/gradpush/extrapoints/internal/storage"
	"github.com/gradpush/extrapoints/pkg/client"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp             = errors.New("help provided")
	errNotAuthenticated = errors.New("not logged in, run: extrapoints login")
)

type command struct {
	name    string
	summary string
	run     func(cli *commandLine, ctx context.Context, args []string) error
}

var commands = []command{
	{"login", "log in and remember the session", (*commandLine).login},
	{"logout", "end the session", (*commandLine).logout},
	{"whoami", "show the logged-in user", (*commandLine).whoami},
	{"register", "create an account", (*commandLine).register},
	{"reset-password", "set a new password", (*commandLine).resetPassword},
	{"list", "list applications", (*commandLine).list},
	{"pending", "list applications awaiting review", (*commandLine).pending},
	{"show", "show one application", (*commandLine).show},
	{"create", "submit an application", (*commandLine).create},
	{"review", "review an application", (*commandLine).review},
	{"approve", "approve an application", (*commandLine).approve},
	{"reject", "reject an application", (*commandLine).reject},
	{"delete", "delete an application", (*commandLine).deleteApplication},
	{"stats", "show a student's score summary", (*commandLine).stats},
	{"ranking", "show the students ranking", (*commandLine).ranking},
	{"orgs", "show faculties, departments and majors", (*commandLine).orgs},
	{"rules-import", "import scoring rules from YAML", (*commandLine).rulesImport},
	{"files", "list published graduate files", (*commandLine).files},
	{"upload-file", "publish graduate files", (*commandLine).uploadFiles},
	{"delete-file", "remove a graduate file", (*commandLine).deleteFile},
	{"watch", "follow the pending queue", (*commandLine).watch},
}

type commandLine struct {
	cfg    *config.Config
	kv     storage.KV
	stdin  io.Reader
	out    io.Writer
	logger *slog.Logger

	client  *client.Client
	session *session.Session
	apps    *applications.Store
}

func newCommandLine(cfg *config.Config, kv storage.KV, stdin io.Reader, out io.Writer, logger *slog.Logger) *commandLine {
	opts := []client.Option{
		client.WithOrigin(cfg.API.Origin),
		client.WithTimeout(cfg.API.Timeout),
		client.WithLogger(logger),
	}
	mode := session.Mode(cfg.API.AuthMode)
	if mode != session.ModeToken {
		opts = append(opts, client.WithSessionCookies())
	}
	c := client.NewClient(cfg.API.BaseURL, opts...)

	return &commandLine{
		cfg:     cfg,
		kv:      kv,
		stdin:   stdin,
		out:     out,
		logger:  logger,
		client:  c,
		session: session.New(c, kv, session.WithMode(mode), session.WithLogger(logger)),
		apps: applications.NewStore(
			applications.NewHTTPBackend(c, applications.WithRankingPath(cfg.API.RankingPath)),
			applications.WithLogger(logger),
		),
	}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage: extrapoints COMMAND [OPTIONS]")
	fmt.Fprintln(cli.out)
	fmt.Fprintln(cli.out, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(cli.out, "  %-15s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(cli.out)
	fmt.Fprintln(cli.out, "Run 'extrapoints COMMAND -h' for the options of a command.")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		cli.printUsage()
		return errHelp
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			err := cmd.run(cli, ctx, args[1:])
			if errors.Is(err, flag.ErrHelp) {
				return errHelp
			}
			return err
		}
	}
	if args[0] != "help" && args[0] != "-h" && args[0] != "--help" {
		fmt.Fprintf(cli.out, "unknown command %q\n\n", args[0])
	}
	cli.printUsage()
	return errHelp
}

// flagSet returns a flag set that reports errors instead of exiting
func (cli *commandLine) flagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	fs.Usage = func() {
		fmt.Fprintf(cli.out, "Usage: extrapoints %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

// requireSession restores the saved session and fails when nobody is
// logged in
func (cli *commandLine) requireSession(ctx context.Context) (*models.User, error) {
	if err := cli.session.Initialize(ctx); err != nil {
		return nil, err
	}
	user := cli.session.User()
	if user == nil || !cli.session.IsAuthenticated() {
		return nil, errNotAuthenticated
	}
	return user, nil
}

// storeError turns the store's recorded failure into an error
func (cli *commandLine) storeError() error {
	if msg := cli.apps.Err(); msg != "" {
		return errors.New(msg)
	}
	return errors.New("operation failed")
}

// promptPassword reads a password from the terminal without echo
func (cli *commandLine) promptPassword(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

// singleID returns the one positional id argument
func singleID(fs *flag.FlagSet) (models.ID, error) {
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		fs.Usage()
		return "", errHelp
	}
	return models.ID(strings.TrimSpace(fs.Arg(0))), nil
}

// optionalFloat is a float flag that remembers whether it was set
type optionalFloat struct {
	value *float64
}

func (f *optionalFloat) String() string {
	if f.value == nil {
		return ""
	}
	return strconv.FormatFloat(*f.value, 'f', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("must not be negative")
	}
	f.value = &v
	return nil
}

// stringList collects a repeatable flag
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}
