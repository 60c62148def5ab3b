package instance

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsPortAvailable(t *testing.T) {
	port := 19999
	if !IsPortAvailable(port) {
		t.Skipf("port %d is not available, skipping test", port)
	}

	listener, err := net.Listen("tcp", ":19999")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	if IsPortAvailable(19999) {
		t.Error("IsPortAvailable should return false when port is in use")
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("expected /healthz, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := HealthCheck(srv.Listener.Addr().String()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}

func TestHealthCheckFailsOnNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := HealthCheck(srv.Listener.Addr().String()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestWaitForPortToBeAvailable(t *testing.T) {
	port := 22005

	if !WaitForPortToBeAvailable(port, time.Second) {
		t.Error("expected an already-free port to be reported available")
	}

	listener, err := net.Listen("tcp", ":22005")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		listener.Close()
	}()

	if !WaitForPortToBeAvailable(port, time.Second) {
		t.Error("expected port to become available once listener closed")
	}
}

func TestWaitForPortToBeAvailableTimesOut(t *testing.T) {
	port := 22006
	listener, err := net.Listen("tcp", ":22006")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	if WaitForPortToBeAvailable(port, 300*time.Millisecond) {
		t.Error("expected timeout while port remains occupied")
	}
}
