package daemonlock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireWritesPIDFile(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "cwtd.lock")
	pidPath := filepath.Join(dir, "cwtd.pid")

	lock, err := Acquire(lockPath, pidPath, "0.1.0", "/base")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	data, err := ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile failed: %v", err)
	}
	if data.PID != os.Getpid() {
		t.Errorf("expected PID=%d, got %d", os.Getpid(), data.PID)
	}
	if data.Version != "0.1.0" || data.BasePath != "/base" {
		t.Errorf("unexpected PID file contents: %+v", data)
	}
}

func TestAcquireFailsWhileAlreadyHeld(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "cwtd.lock")
	pidPath := filepath.Join(dir, "cwtd.pid")

	first, err := Acquire(lockPath, pidPath, "0.1.0", "/base")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(lockPath, pidPath+".2", "0.1.0", "/base"); err == nil {
		t.Fatal("expected second Acquire to fail while first holds the lock")
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "cwtd.lock")
	pidPath := filepath.Join(dir, "cwtd.pid")

	first, err := Acquire(lockPath, pidPath, "0.1.0", "/base")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	first.Release()

	second, err := Acquire(lockPath, pidPath, "0.1.0", "/base")
	if err != nil {
		t.Fatalf("expected reacquire to succeed after Release, got: %v", err)
	}
	second.Release()
}

func TestIsProcessRunningForSelf(t *testing.T) {
	if !IsProcessRunning(os.Getpid()) {
		t.Fatal("expected current process to report as running")
	}
}
