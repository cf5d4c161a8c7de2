package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

func runReport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(a.out)
	out := fs.String("out", "", "file to write (default psychintake-report-<id>.pdf)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	id := strings.TrimSpace(fs.Arg(0))
	if id == "" {
		ref, err := a.store.LastReport(ctx)
		if err != nil {
			return fmt.Errorf("read last report: %w", err)
		}
		if ref == nil {
			return errors.New("no report on this device; pass a report id")
		}
		id = ref.ID
	}
	path := *out
	if path == "" {
		path = "psychintake-report-" + safeFileName(id) + ".pdf"
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	n, err := a.client.DownloadReport(ctx, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(path); rerr != nil {
			slog.Warn("runReport: failed to remove partial report", "error", rerr, "path", path)
		}
		return err
	}
	abs, _ := filepath.Abs(path)
	slog.Info("runReport: report saved", "report_id", id, "bytes", n)
	a.printf("Saved report %s (%d bytes) to %s\n", id, n, abs)
	return nil
}

// safeFileName keeps letters, digits, dash and underscore.
func safeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
