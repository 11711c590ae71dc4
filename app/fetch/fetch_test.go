package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestClient_Do_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "feedhook-test" {
			t.Errorf("Expected user agent to be set, got %q", got)
		}
		w.Header().Set("X-Test", "1")
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	client := NewClient("feedhook-test")
	resp, err := client.Do(context.Background(), server.URL, Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Expected body 'hello', got %q", resp.Body)
	}
	if resp.Headers.Get("X-Test") != "1" {
		t.Error("Expected response headers to be preserved")
	}
}

func TestClient_Do_Non2xxIsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream broken"))
	}))
	defer server.Close()

	client := NewClient("feedhook-test")
	_, err := client.Do(context.Background(), server.URL, Options{})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", httpErr.StatusCode)
	}
	if string(httpErr.Body) != "upstream broken" {
		t.Errorf("Expected error to carry response body, got %q", httpErr.Body)
	}
}

func TestClient_Download(t *testing.T) {
	payload := []byte("file content for hashing")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")

	client := NewClient("feedhook-test")
	info, err := client.Download(context.Background(), server.URL, path, Options{})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if info.Size != int64(len(payload)) {
		t.Errorf("Expected size %d, got %d", len(payload), info.Size)
	}
	sum := md5.Sum(payload)
	if info.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("Expected md5 %x, got %s", sum, info.Hash)
	}

	inspected, err := InspectFile(path)
	if err != nil {
		t.Fatalf("InspectFile failed: %v", err)
	}
	if inspected.Hash != info.Hash || inspected.Size != info.Size {
		t.Error("InspectFile should reproduce the download's hash and size")
	}
}

func TestClient_Download_FailureRemovesPartialFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "missing.bin")

	client := NewClient("feedhook-test")
	if _, err := client.Download(context.Background(), server.URL, path, Options{}); err == nil {
		t.Fatal("Expected error for 404 download")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no file to be left behind after a failed download")
	}
}
