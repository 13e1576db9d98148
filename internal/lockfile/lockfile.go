// Package lockfile keeps two MindMate servers from sharing one state directory.
//
// The lock is an flock on a file in the state directory, so the kernel drops
// it when the process exits, cleanly or not.
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

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "mindmate.lock"

// Holder describes the process holding the lock. It is written to the lock
// file as key=value lines.
type Holder struct {
	PID       int
	StartedAt time.Time
	Addr      string
}

func (h Holder) encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\n", h.PID)
	if !h.StartedAt.IsZero() {
		fmt.Fprintf(&b, "started_at=%s\n", h.StartedAt.UTC().Format(time.RFC3339))
	}
	if h.Addr != "" {
		fmt.Fprintf(&b, "addr=%s\n", h.Addr)
	}
	return b.String()
}

// parseHolder reads the key=value lines of a lock file. Unknown keys and
// malformed values are ignored.
func parseHolder(content string) Holder {
	var h Holder
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(val); err == nil && pid > 0 {
				h.PID = pid
			}
		case "started_at":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				h.StartedAt = t
			}
		case "addr":
			h.Addr = val
		}
	}
	return h
}

// Lock is a held state directory lock.
type Lock struct {
	file     *os.File
	path     string
	acquired bool
}

// AcquireLock takes the state directory lock for this process. addr, when
// non-empty, is recorded so a conflicting start can name the running server.
func AcquireLock(stateDir string, addr ...string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("AcquireLock: attempting", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		info := describeHolder(lockPath)
		slog.Error("AcquireLock: another MindMate instance holds the lock",
			"error", err, "lock_path", lockPath, "holder", info)
		return nil, &LockError{LockPath: lockPath, ExistingInfo: info, Cause: err}
	}

	// truncate only once the lock is ours, so a loser never wipes the holder's info
	h := Holder{PID: os.Getpid(), StartedAt: time.Now()}
	if len(addr) > 0 {
		h.Addr = addr[0]
	}
	if err := writeHolder(file, h); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("AcquireLock: state directory locked", "lock_path", lockPath, "pid", h.PID)
	return &Lock{file: file, path: lockPath, acquired: true}, nil
}

func writeHolder(file *os.File, h Holder) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(h.encode()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("AcquireLock: failed to sync lock file", "error", err)
	}
	return nil
}

// Release drops the lock and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || !l.acquired || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Lock.Release: failed to release flock", "error", err, "lock_path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("Lock.Release: failed to close lock file", "error", err, "lock_path", l.path)
	}
	if err := os.Remove(l.path); err != nil {
		// the flock is already gone
		slog.Warn("Lock.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	l.acquired = false
	l.file = nil
	slog.Info("Lock.Release: state directory unlocked", "lock_path", l.path)
	return nil
}

// LockError reports that another process holds the lock.
type LockError struct {
	LockPath     string
	ExistingInfo string
	Cause        error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("Another MindMate instance is already running using the same state directory.\n\nLock file: %s", e.LockPath)
	if e.ExistingInfo != "" {
		msg += fmt.Sprintf("\nExisting process: %s", e.ExistingInfo)
	}
	msg += "\n\nIf no other MindMate instance is running the lock file may be stale.\n" +
		fmt.Sprintf("Remove it with:\n  rm %s", e.LockPath) +
		"\n\nRemoving the lock while another instance runs lets two schedulers and job runners share one database."
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder summarises the lock file for an error message.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unable to read lock file information"
	}
	if len(data) == 0 {
		return "lock file exists but contains no process information"
	}
	h := parseHolder(string(data))
	if h.PID == 0 {
		return fmt.Sprintf("process information: %s", strings.TrimSpace(string(data)))
	}

	state := "not running - stale lock"
	if isProcessRunning(h.PID) {
		state = "running"
	}
	desc := fmt.Sprintf("PID %d (%s)", h.PID, state)
	if !h.StartedAt.IsZero() {
		desc += ", started " + h.StartedAt.Format(time.RFC3339)
	}
	if h.Addr != "" {
		desc += ", serving " + h.Addr
	}
	return desc
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
