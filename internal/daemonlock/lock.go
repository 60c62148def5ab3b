// Package daemonlock enforces a single running cwtd instance per base
// directory with an advisory flock plus a PID file, the POSIX analogue of
// the teacher's Windows handle-based instance lock.
package daemonlock

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// PIDFileData is the JSON structure written to the PID file alongside the
// lock, so a human can inspect who holds it without flock(2).
type PIDFileData struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	BasePath  string    `json:"base_path"`
	Hostname  string    `json:"hostname"`
}

// Lock holds an acquired advisory file lock. Release must be called to
// give up the lock and clean up the PID file.
type Lock struct {
	lockPath string
	pidPath  string
	fd       int
}

// Acquire takes the advisory lock at lockPath, failing immediately (no
// blocking wait) if another live process already holds it. On success it
// also writes pidPath with process metadata.
func Acquire(lockPath, pidPath, version, basePath string) (*Lock, error) {
	fd, err := unix.Open(lockPath, unix.O_CREAT|unix.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("daemonlock: failed to open lock file: %w", err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("daemonlock: another instance already holds the lock at %s", lockPath)
		}
		return nil, fmt.Errorf("daemonlock: failed to acquire lock: %w", err)
	}

	l := &Lock{lockPath: lockPath, pidPath: pidPath, fd: fd}
	if err := l.writePIDFile(version, basePath); err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

func (l *Lock) writePIDFile(version, basePath string) error {
	hostname, _ := os.Hostname()
	data := PIDFileData{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		Version:   version,
		BasePath:  basePath,
		Hostname:  hostname,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("daemonlock: failed to marshal PID data: %w", err)
	}
	if err := os.WriteFile(l.pidPath, jsonData, 0644); err != nil {
		return fmt.Errorf("daemonlock: failed to write PID file: %w", err)
	}
	return nil
}

// Release drops the lock, closes the underlying fd, and removes the PID
// file and lock file.
func (l *Lock) Release() {
	if l.fd != 0 {
		unix.Flock(l.fd, unix.LOCK_UN)
		unix.Close(l.fd)
	}
	os.Remove(l.pidPath)
	os.Remove(l.lockPath)
}

// ReadPIDFile reads the PID metadata at pidPath without acquiring the lock,
// for a CLI to report who currently holds it.
func ReadPIDFile(pidPath string) (*PIDFileData, error) {
	raw, err := os.ReadFile(pidPath)
	if err != nil {
		return nil, err
	}
	var data PIDFileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("daemonlock: failed to parse PID file: %w", err)
	}
	return &data, nil
}

// IsProcessRunning reports whether pid refers to a live process, by
// sending signal 0 (no-op delivery, existence check only).
func IsProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
