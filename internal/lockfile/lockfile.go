// Package lockfile ensures only one PsychIntake client runs per profile.
//
// The lock is an flock on a file in the state directory, so the kernel drops it
// when the process exits for any reason. Holding it makes the client the single
// writer of the profile's paused-session record.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// LockFileName is the lock file used by the default profile.
const LockFileName = "psychintake.lock"

// FileNameFor returns the lock file name for profile.
func FileNameFor(profile string) string {
	if profile == "" || profile == "default" {
		return LockFileName
	}
	return "psychintake-" + sanitizeProfile(profile) + ".lock"
}

func sanitizeProfile(profile string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, profile)
}

// Lock represents a held profile lock.
type Lock struct {
	file     *os.File
	path     string
	acquired bool
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// AcquireLock takes the exclusive lock for profile inside stateDir. It fails
// immediately with a *LockError if another client holds it.
func AcquireLock(stateDir, profile string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, FileNameFor(profile))
	slog.Debug("lockfile.AcquireLock: attempting", "lock_path", lockPath, "profile", profile)

	if err := os.MkdirAll(stateDir, 0700); err != nil {
		slog.Error("Failed to create state directory for lock", "error", err, "state_dir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// Not truncated until the lock is ours, so a losing client can still read
	// the holder's pid.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		slog.Error("Failed to open lock file", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := readExistingLockInfo(lockPath)
		slog.Error("lockfile.AcquireLock: profile already in use", "error", err, "lock_path", lockPath, "holder", holder)
		return nil, &LockError{
			LockPath:     lockPath,
			Profile:      profile,
			ExistingInfo: holder,
			Cause:        err,
		}
	}

	if err := writeLockInfo(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		slog.Error("Failed to write lock information", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Debug("lockfile.AcquireLock: acquired", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath, acquired: true}, nil
}

func writeLockInfo(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Failed to sync lock file", "error", err)
	}
	return nil
}

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || !l.acquired || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Failed to release flock", "error", err, "lock_path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("Failed to close lock file", "error", err, "lock_path", l.path)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove lock file", "error", err, "lock_path", l.path)
	}
	l.acquired = false
	l.file = nil
	slog.Debug("lockfile.Release: released", "lock_path", l.path)
	return nil
}

// LockError reports that another client holds the profile lock.
type LockError struct {
	LockPath     string
	Profile      string
	ExistingInfo string
	Cause        error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another PsychIntake client is already using this profile (lock file: %s)", e.LockPath)
	if e.ExistingInfo != "" {
		msg += "; holder: " + e.ExistingInfo
	}
	return msg + ". Close the other client, or remove the lock file if that process is gone."
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// Is lets callers match a LockError with models.ErrAlreadyRunning.
func (e *LockError) Is(target error) bool {
	return target == models.ErrAlreadyRunning
}

// HolderPID returns the pid recorded by the lock holder, or 0 if unknown.
func (e *LockError) HolderPID() int {
	return extractPIDFromLockInfo(e.ExistingInfo)
}

func readExistingLockInfo(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unreadable"
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return ""
	}
	if pid := extractPIDFromLockInfo(content); pid > 0 {
		if isProcessRunning(pid) {
			return fmt.Sprintf("pid=%d (running)", pid)
		}
		return fmt.Sprintf("pid=%d (not running, stale)", pid)
	}
	return content
}

// extractPIDFromLockInfo finds a "pid=N" entry in lock file content.
func extractPIDFromLockInfo(content string) int {
	const pidPrefix = "pid="
	idx := strings.Index(content, pidPrefix)
	if idx == -1 {
		return 0
	}
	start := idx + len(pidPrefix)
	end := start
	for end < len(content) && content[end] >= '0' && content[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	pid, err := strconv.Atoi(content[start:end])
	if err != nil {
		return 0
	}
	return pid
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
