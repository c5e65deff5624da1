// Package cli parses the teamflow command line and runs either the board
// or one of the one-shot subcommands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/tgienger/teamflow/internal/api"
	"github.com/tgienger/teamflow/internal/board"
	"github.com/tgienger/teamflow/internal/config"
	"github.com/tgienger/teamflow/internal/db"
	"github.com/tgienger/teamflow/internal/models"
)

// TUIFunc runs the interactive board until the user quits
type TUIFunc func(ctx context.Context, cfg *config.Config, store *db.DB) error

// Runner dispatches a command line
type Runner struct {
	Getenv config.Getenv

	Version string
	Commit  string
	Date    string

	// TUI defaults to RunTUI
	TUI TUIFunc

	Now func() time.Time
}

const usage = `Usage:
  teamflow [flags]                 open the task board
  teamflow list [--status S] [flags]
                                   print stats and tasks once; in optional
                                   mode an expired session falls back to
                                   the public board
  teamflow logout [flags]          forget the stored session
  teamflow version                 print version information
  teamflow help                    show this help

Flags:
  --api-url URL       backend URL (TEAMFLOW_API_URL)
  --auth-mode MODE    required, optional or none (TEAMFLOW_AUTH_MODE)
  --poll DURATION     refresh interval (TEAMFLOW_POLL_INTERVAL)
  --login-addr ADDR   local login page address (TEAMFLOW_LOGIN_ADDR); the
                      bot's /setdomain domain must reach it
  --data-dir DIR      settings database directory (TEAMFLOW_DATA_DIR)
  --debug             write a debug log (TEAMFLOW_DEBUG)
`

// Run parses args and dispatches. Returns the exit code.
func (r *Runner) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		if len(args) > 0 && (args[0] == "--version" || args[0] == "-v") {
			return r.version(out)
		}
		return r.board(ctx, args, errOut)
	}

	switch args[0] {
	case "list":
		return r.list(ctx, args[1:], out, errOut)
	case "logout":
		return r.logout(args[1:], out, errOut)
	case "version":
		return r.version(out)
	case "help":
		fmt.Fprint(out, usage)
		return ExitOK
	}
	fmt.Fprintf(errOut, "error: unknown command: %s\n", args[0])
	return ExitUsage
}

func (r *Runner) version(out io.Writer) int {
	fmt.Fprintf(out, "teamflow %s (commit: %s, built: %s)\n", r.Version, r.Commit, r.Date)
	return ExitOK
}

// parse loads the configuration and applies command line flags. extra
// registers command-specific flags.
func (r *Runner) parse(name string, args []string, errOut io.Writer, extra func(*flag.FlagSet)) (*config.Config, int) {
	cfg, err := config.Load(r.Getenv)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return nil, ExitUsage
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(errOut, usage)
		} else {
			fmt.Fprintf(errOut, "error: %s\n", err)
		}
		return nil, ExitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", fs.Arg(0))
		return nil, ExitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return nil, ExitUsage
	}
	return cfg, ExitOK
}

func (r *Runner) board(ctx context.Context, args []string, errOut io.Writer) int {
	cfg, code := r.parse("teamflow", args, errOut, nil)
	if cfg == nil {
		return code
	}

	store, err := db.New(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: open settings: %s\n", err)
		return ExitUsage
	}
	defer store.Close()

	tui := r.TUI
	if tui == nil {
		tui = RunTUI
	}
	if err := tui(ctx, cfg, store); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return ExitBackend
	}
	return ExitOK
}

func (r *Runner) list(ctx context.Context, args []string, out, errOut io.Writer) int {
	var status string
	cfg, code := r.parse("list", args, errOut, func(fs *flag.FlagSet) {
		fs.StringVar(&status, "status", "", "only tasks with this status")
	})
	if cfg == nil {
		return code
	}
	filter, err := models.ParseFilter(status)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return ExitUsage
	}
	if !cfg.Debug {
		log.SetOutput(io.Discard)
	}

	store, err := db.New(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: open settings: %s\n", err)
		return ExitUsage
	}
	defer store.Close()

	client, err := api.New(cfg.APIURL)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return ExitUsage
	}

	var token string
	if cfg.AuthMode != board.AuthNone {
		if token, err = store.Token(); err != nil {
			fmt.Fprintf(errOut, "error: read session: %s\n", err)
			return ExitUsage
		}
	}
	if token == "" && cfg.AuthMode == board.AuthRequired {
		fmt.Fprintln(errOut, "error: not signed in (run: teamflow)")
		return ExitAuth
	}

	snap, err := board.FetchSnapshot(ctx, client, token, filter)
	if errors.Is(err, api.ErrUnauthorized) && token != "" {
		if cerr := store.ClearToken(); cerr != nil {
			log.Printf("clear expired session: %v", cerr)
		}
		if cfg.AuthMode == board.AuthRequired {
			fmt.Fprintln(errOut, "error: session expired (run: teamflow)")
			return ExitAuth
		}
		// the public board is still readable
		fmt.Fprintln(errOut, "session expired, showing the public board")
		snap, err = board.FetchSnapshot(ctx, client, "", filter)
	}
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			fmt.Fprintln(errOut, "error: sign in required (run: teamflow)")
			return ExitAuth
		}
		log.Printf("list: %v", err)
		fmt.Fprintf(errOut, "error: %s\n", api.Describe(err))
		return ExitBackend
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	FormatStats(out, snap.Stats)
	fmt.Fprintln(out, Separator)
	if len(snap.Tasks) == 0 {
		fmt.Fprintln(out, "(no tasks)")
	}
	for _, t := range snap.Tasks {
		FormatTask(out, t, now())
	}
	return ExitOK
}

func (r *Runner) logout(args []string, out, errOut io.Writer) int {
	cfg, code := r.parse("logout", args, errOut, nil)
	if cfg == nil {
		return code
	}
	store, err := db.New(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: open settings: %s\n", err)
		return ExitUsage
	}
	defer store.Close()

	if err := store.ClearToken(); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return ExitUsage
	}
	fmt.Fprintln(out, "Signed out.")
	return ExitOK
}
