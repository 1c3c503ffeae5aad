package lockfile

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("unexpected lock path %s", lock.Path())
	}
	content, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if !strings.HasPrefix(string(content), "pid="+strconv.Itoa(os.Getpid())+"\n") {
		t.Errorf("lock file should start with our pid, got %q", content)
	}
	if !strings.Contains(string(content), "started=") {
		t.Errorf("lock file should record start time, got %q", content)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire first lock: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("second acquisition should have failed")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if lockErr.Holder.PID != os.Getpid() || !lockErr.Holder.Running {
		t.Errorf("expected holder to be this running process, got %+v", lockErr.Holder)
	}
	if !strings.Contains(err.Error(), "already using this state directory") || !strings.Contains(err.Error(), dir) {
		t.Errorf("error should explain the conflict: %s", err)
	}

	// The failed attempt must not clobber the holder's information.
	content, _ := os.ReadFile(first.Path())
	if !strings.HasPrefix(string(content), "pid="+strconv.Itoa(os.Getpid())) {
		t.Errorf("holder info was overwritten: %q", content)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second release should be a no-op: %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to reacquire lock: %v", err)
	}
	again.Release()
}

func TestAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("should create directory and acquire lock: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory should exist: %v", err)
	}
}

func TestParseHolder(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pid     int
		started bool
	}{
		{"pid and start", "pid=12345\nstarted=2025-01-01T20:00:00Z\n", 12345, true},
		{"pid only", "pid=67890\n", 67890, false},
		{"garbage", "hello", 0, false},
		{"empty", "", 0, false},
		{"bad pid", "pid=abc\nstarted=yesterday", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := parseHolder(bufio.NewScanner(strings.NewReader(tt.content)))
			if h.PID != tt.pid || h.StartedAt.IsZero() == tt.started {
				t.Errorf("parseHolder(%q) = %+v", tt.content, h)
			}
		})
	}
}

func TestHolderString(t *testing.T) {
	if got := (Holder{}).String(); got != "unknown process" {
		t.Errorf("unexpected %q", got)
	}
	if got := (Holder{PID: 42}).String(); !strings.Contains(got, "stale lock") {
		t.Errorf("expected stale marker, got %q", got)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("own process should be running")
	}
}
