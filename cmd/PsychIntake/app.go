package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/PsychIntake/internal/api"
	"github.com/BTreeMap/PsychIntake/internal/config"
	"github.com/BTreeMap/PsychIntake/internal/lockfile"
	"github.com/BTreeMap/PsychIntake/internal/store"
)

// errUsage marks a command-line mistake already explained to the user.
var errUsage = errors.New("usage error")

// app holds what every command needs. The profile lock is taken before the
// store is opened and released after it is closed.
type app struct {
	cfg    *config.Config
	lock   *lockfile.Lock
	store  *store.SessionStore
	client *api.Client
	out    io.Writer
	outMu  sync.Mutex

	in        io.Reader
	startOnce sync.Once
	lines     chan string
	done      chan struct{}
	closeOnce sync.Once
}

func openApp(cfg *config.Config, in io.Reader, out io.Writer) (*app, error) {
	if err := cfg.EnsureStateDir(); err != nil {
		return nil, err
	}
	lock, err := lockfile.AcquireLock(cfg.StateDir, cfg.Profile)
	if err != nil {
		return nil, err
	}
	backend, err := store.Open(store.WithDSN(cfg.StoreDSN), store.WithProfile(cfg.Profile))
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	st := store.NewSessionStore(backend)
	client := api.NewClient(
		api.WithBaseURL(cfg.APIBaseURL),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithTokenSource(st),
	)
	slog.Debug("app: opened", "state_dir", cfg.StateDir, "store_local", cfg.UsesLocalFile(), "lock_path", lock.Path())
	return &app{
		cfg:    cfg,
		lock:   lock,
		store:  st,
		client: client,
		out:    out,
		in:     in,
		lines:  make(chan string),
		done:   make(chan struct{}),
	}, nil
}

// Close closes the store, then releases the profile lock.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		if err := a.store.Close(); err != nil {
			slog.Error("app.Close: failed to close store", "error", err)
		}
		if err := a.lock.Release(); err != nil {
			slog.Error("app.Close: failed to release lock", "error", err)
		}
	})
}

// printf writes to the user. Notification handlers call it from the
// channel's goroutine.
func (a *app) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// readLine prints prompt and waits for one input line. It returns io.EOF when
// input ends and ctx.Err() when ctx is cancelled first.
func (a *app) readLine(ctx context.Context, prompt string) (string, error) {
	a.startOnce.Do(func() { go a.scan() })
	if prompt != "" {
		a.printf("%s", prompt)
	}
	select {
	case line, ok := <-a.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimRight(line, "\r"), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// scan feeds input lines to readLine. Input is read on its own goroutine so
// an interrupt is not stuck behind a blocking read.
func (a *app) scan() {
	defer close(a.lines)
	sc := bufio.NewScanner(a.in)
	for sc.Scan() {
		select {
		case a.lines <- sc.Text():
		case <-a.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		slog.Warn("app.scan: input read failed", "error", err)
	}
}

// ask reads a trimmed answer; required answers are asked again while blank.
func (a *app) ask(ctx context.Context, label string, required bool) (string, error) {
	for {
		line, err := a.readLine(ctx, label+": ")
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line != "" || !required {
			return line, nil
		}
		a.printf("%s is required.\n", label)
	}
}

// confirm asks a yes/no question. Anything but an explicit no is yes.
func (a *app) confirm(ctx context.Context, question string) (bool, error) {
	line, err := a.readLine(ctx, question+" [Y/n] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no":
		return false, nil
	default:
		return true, nil
	}
}
