// Command PsychIntake is a terminal client for the PsychIntake intake platform.
//
// Usage:
//
//	PsychIntake [global flags] <command> [command flags]
//
// Commands: intake, signup, signin, signout, notifications, report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/BTreeMap/PsychIntake/internal/config"
	"github.com/BTreeMap/PsychIntake/internal/models"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitUsage  = 2
	exitLocked = 3
)

// command runs one subcommand against an opened app.
type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"intake":        {"chat with the intake assistant", runIntake},
	"signup":        {"create a patient account", runSignup},
	"signin":        {"sign in to an existing account", runSignin},
	"signout":       {"forget the cached sign-in", runSignout},
	"notifications": {"stream provider notifications until interrupted", runNotifications},
	"report":        {"download a completed assessment report", runReport},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses global flags, loads configuration and dispatches the command.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("PsychIntake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o config.Overrides
	fs.StringVar(&o.APIBaseURL, "api-base-url", "", "backend base URL (overrides $PSYCHINTAKE_API_BASE_URL)")
	fs.StringVar(&o.WSURL, "ws-url", "", "notification websocket URL (overrides $PSYCHINTAKE_WS_URL)")
	fs.StringVar(&o.StateDir, "state-dir", "", "state directory (overrides $PSYCHINTAKE_STATE_DIR)")
	fs.StringVar(&o.StoreDSN, "store-dsn", "", "session store DSN: sqlite path, postgres:// or redis:// (overrides $PSYCHINTAKE_STORE_DSN)")
	fs.StringVar(&o.Profile, "profile", "", "profile name, one client per profile (overrides $PSYCHINTAKE_PROFILE)")
	fs.StringVar(&o.LogLevel, "log-level", "", "debug, info, warn or error (overrides $PSYCHINTAKE_LOG_LEVEL)")
	fs.DurationVar(&o.RequestTimeout, "timeout", 0, "HTTP request timeout (overrides $PSYCHINTAKE_REQUEST_TIMEOUT)")
	ephemeral := fs.Bool("ephemeral", false, "keep session state in memory only for this run")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if *ephemeral {
		o.StoreDSN = "memory:"
	}

	// Logs go to stderr at info until the configured level is known.
	initializeLogger(stderr, slog.LevelInfo)
	cfg, err := config.Load(config.LoadOptions{Overrides: o})
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitUsage
	}
	level, _ := cfg.SlogLevel()
	initializeLogger(stderr, level)

	if fs.NArg() == 0 {
		usage(stderr, fs)
		return exitUsage
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(stderr, fs)
		return exitUsage
	}

	a, err := openApp(cfg, stdin, stdout)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyRunning) {
			fmt.Fprintln(stderr, err)
			return exitLocked
		}
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return exitError
	}
	defer a.Close()

	slog.Debug("main: running command", "command", name, "profile", cfg.Profile)
	if err := cmd.run(ctx, a, fs.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		if ctx.Err() != nil {
			return exitOK
		}
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return exitError
	}
	return exitOK
}

// initializeLogger sets up structured logging on w. The chat owns stdout.
func initializeLogger(w io.Writer, level slog.Level) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: PsychIntake [flags] <command> [command flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-14s %s\n", n, commands[n].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}
