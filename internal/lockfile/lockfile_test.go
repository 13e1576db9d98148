package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLockAcquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir, ":8080")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tempDir, LockFileName)
	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	h := parseHolder(string(content))
	if h.PID != os.Getpid() {
		t.Errorf("Expected pid %d, got %d", os.Getpid(), h.PID)
	}
	if h.Addr != ":8080" {
		t.Errorf("Expected addr :8080, got %q", h.Addr)
	}
	if time.Since(h.StartedAt) > time.Minute {
		t.Errorf("Expected a recent start time, got %v", h.StartedAt)
	}
}

func TestLockConflict(t *testing.T) {
	tempDir := t.TempDir()

	lock1, err := AcquireLock(tempDir, "127.0.0.1:9090")
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(tempDir)
	if err == nil {
		lock2.Release()
		t.Fatalf("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got: %T", err)
	}
	errMsg := err.Error()
	if !strings.Contains(errMsg, "Another MindMate instance is already running") {
		t.Errorf("Error message should mention another instance running: %s", errMsg)
	}
	if !strings.Contains(errMsg, tempDir) {
		t.Errorf("Error message should contain the lock path: %s", errMsg)
	}
	if !strings.Contains(lockErr.ExistingInfo, "(running)") || !strings.Contains(lockErr.ExistingInfo, "127.0.0.1:9090") {
		t.Errorf("Expected holder description with addr, got %q", lockErr.ExistingInfo)
	}

	// the failed attempt must not clobber the holder's information
	content, _ := os.ReadFile(filepath.Join(tempDir, LockFileName))
	if parseHolder(string(content)).PID != os.Getpid() {
		t.Errorf("Lock file content was overwritten: %q", content)
	}
}

func TestLockRelease(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	lockPath := filepath.Join(tempDir, LockFileName)

	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %s", lockPath)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Multiple releases should be safe: %v", err)
	}

	lock2, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	defer lock2.Release()
}

func TestParseHolder(t *testing.T) {
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		content string
		want    Holder
	}{
		{"full", "pid=12345\nstarted_at=2026-03-01T08:00:00Z\naddr=:8080\n", Holder{PID: 12345, StartedAt: started, Addr: ":8080"}},
		{"pid only", "pid=67890\n", Holder{PID: 67890}},
		{"unknown keys", "pid=1\nother=info", Holder{PID: 1}},
		{"invalid pid", "pid=abc", Holder{}},
		{"no equals", "pid12345", Holder{}},
		{"empty", "", Holder{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseHolder(tt.content)
			if got.PID != tt.want.PID || got.Addr != tt.want.Addr || !got.StartedAt.Equal(tt.want.StartedAt) {
				t.Errorf("parseHolder(%q) = %+v, want %+v", tt.content, got, tt.want)
			}
		})
	}
}

func TestHolderEncodeRoundTrip(t *testing.T) {
	h := Holder{PID: 42, StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Addr: ":8080"}
	got := parseHolder(h.encode())
	if got.PID != 42 || got.Addr != ":8080" || !got.StartedAt.Equal(h.StartedAt) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Errorf("Our own process should be detected as running")
	}
}

func TestNonExistentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), fmt.Sprintf("missing_%d", time.Now().UnixNano()))

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Should be able to create directory and acquire lock: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("Directory should have been created: %s", dir)
	}
}
