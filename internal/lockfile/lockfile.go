// Package lockfile guards a SleepyStorybook state directory so that only one
// server writes to a file-based story store at a time.
//
// The lock is an flock held on a file inside the directory; the kernel drops it
// when the process exits, so a crash never leaves the directory locked.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "sleepystorybook.lock"

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID       int
	StartedAt time.Time
	Running   bool
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown process"
	}
	state := "running"
	if !h.Running {
		state = "not running, stale lock"
	}
	if h.StartedAt.IsZero() {
		return fmt.Sprintf("PID %d (%s)", h.PID, state)
	}
	return fmt.Sprintf("PID %d started %s (%s)", h.PID, h.StartedAt.Format(time.RFC3339), state)
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the lock for stateDir, creating the directory if needed.
// It fails immediately with a *LockError when another process holds it.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Lockfile failed to create state directory", "error", err, "state_dir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the holder's info before we know we own the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		slog.Error("Lockfile open failed", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(file)
		file.Close()
		slog.Error("Lockfile already held", "error", err, "lock_path", lockPath, "holder", holder.String())
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	if err := writeHolder(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		slog.Error("Lockfile write failed", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Lockfile acquired", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a waiting process never sees our stale info.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile remove failed", "error", err, "lock_path", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lockfile unlock failed", "error", err, "lock_path", l.path)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("Lockfile released", "lock_path", l.path)
	if err != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, err)
	}
	return nil
}

// LockError reports that another process owns the state directory.
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another SleepyStorybook server is already using this state directory (lock file %s, held by %s)", e.LockPath, e.Holder)
	if e.Holder.PID != 0 && !e.Holder.Running {
		fmt.Fprintf(&b, "; the holder is gone, remove %s if no other server shares this directory", e.LockPath)
	}
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

func writeHolder(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("Lockfile sync failed", "error", err, "lock_path", f.Name())
	}
	return nil
}

func readHolder(f *os.File) Holder {
	if _, err := f.Seek(0, 0); err != nil {
		return Holder{}
	}
	h := parseHolder(bufio.NewScanner(f))
	if h.PID > 0 {
		h.Running = isProcessRunning(h.PID)
	}
	return h
}

// parseHolder reads key=value lines written by writeHolder.
func parseHolder(sc *bufio.Scanner) Holder {
	var h Holder
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "started":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				h.StartedAt = ts
			}
		}
	}
	return h
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
