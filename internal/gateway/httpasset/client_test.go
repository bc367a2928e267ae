package httpasset

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/gateway"
	"github.com/satmihir/photocache/internal/gateway/memory"
	"github.com/satmihir/photocache/internal/retry"
)

// ============================================================================
// Helper Functions
// ============================================================================

func fastRetry() retry.Config {
	return retry.Config{
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2,
		MaxAttempts:    3,
		JitterFraction: 0,
	}
}

func newTestServerAndClient() (*memory.AssetGateway, *httptest.Server, *Client) {
	backend := memory.NewAssetGateway()
	log := logrus.New()
	log.SetOutput(io.Discard)
	srv := NewServer(":0", backend, log)
	ts := httptest.NewServer(srv.Handler())
	return backend, ts, NewClient(ts.URL, WithRetryConfig(fastRetry()))
}

// ============================================================================
// Round Trip Tests
// ============================================================================

func TestClient_UploadDownloadDelete(t *testing.T) {
	backend, ts, client := newTestServerAndClient()
	defer ts.Close()
	ctx := context.Background()

	storagePath, err := client.Upload(ctx, []byte("jpeg-bytes"), "stamps/s1")
	if err != nil {
		t.Fatalf("Upload error = %v", err)
	}
	if !strings.HasPrefix(storagePath, "stamps/s1/") {
		t.Errorf("storage path = %q, want prefix stamps/s1/", storagePath)
	}
	if !backend.Has(storagePath) {
		t.Error("backend does not hold the uploaded blob")
	}

	data, err := client.Download(ctx, storagePath)
	if err != nil {
		t.Fatalf("Download error = %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("Download = %q, want %q", data, "jpeg-bytes")
	}

	if err := client.Delete(ctx, storagePath); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	if backend.Has(storagePath) {
		t.Error("blob survived Delete")
	}
}

func TestClient_DownloadNotFound(t *testing.T) {
	backend, ts, client := newTestServerAndClient()
	defer ts.Close()

	_, err := client.Download(context.Background(), "stamps/s1/missing.jpg")
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("Download error = %v, want ErrNotFound", err)
	}
	if got := backend.Downloads(); got != 1 {
		t.Errorf("backend downloads = %d, want 1 (no retry on NotFound)", got)
	}
}

func TestClient_DownloadRejectsInvalidPath(t *testing.T) {
	_, ts, client := newTestServerAndClient()
	defer ts.Close()

	_, err := client.Download(context.Background(), "../etc/passwd")
	if !errors.Is(err, gateway.ErrInvalidPath) {
		t.Errorf("Download error = %v, want ErrInvalidPath", err)
	}
}

func TestClient_UploadFailureIsNotRetried(t *testing.T) {
	backend, ts, client := newTestServerAndClient()
	defer ts.Close()
	backend.SetUploadError(errors.New("bucket offline"))

	if _, err := client.Upload(context.Background(), []byte("x"), "stamps/s1"); err == nil {
		t.Fatal("Upload should fail")
	}
	if got := backend.Uploads(); got != 1 {
		t.Errorf("backend uploads = %d, want 1", got)
	}
}

// ============================================================================
// Retry Tests
// ============================================================================

func TestClient_DownloadRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, WithRetryConfig(fastRetry()))
	data, err := client.Download(context.Background(), "a/b.jpg")
	if err != nil {
		t.Fatalf("Download error = %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("Download = %q, want ok", data)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestClient_DownloadGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, WithRetryConfig(fastRetry()))
	if _, err := client.Download(context.Background(), "a/b.jpg"); err == nil {
		t.Fatal("Download should fail")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

// ============================================================================
// Server Tests
// ============================================================================

func TestServer_RejectsBadPaths(t *testing.T) {
	_, ts, _ := newTestServerAndClient()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/other/thing")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	_, ts, _ := newTestServerAndClient()
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPatch, ts.URL+"/assets/a/b.jpg", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

// ============================================================================
// Server Lifecycle Tests
// ============================================================================

func TestServer_ShutdownStopsServe(t *testing.T) {
	backend := memory.NewAssetGateway()
	log := logrus.New()
	log.SetOutput(io.Discard)
	srv := NewServer("127.0.0.1:0", backend, log)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen error = %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(l) }()

	client := NewClient("http://"+l.Addr().String(), WithRetryConfig(fastRetry()))
	if _, err := client.Upload(context.Background(), []byte("x"), "stamps/s1"); err != nil {
		t.Fatalf("Upload error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown error = %v", err)
	}

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v after Shutdown, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	if _, err := client.Upload(context.Background(), []byte("x"), "stamps/s1"); err == nil {
		t.Error("Upload after Shutdown should fail")
	}
}
