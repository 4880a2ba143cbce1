package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestHTTPDownloader_Fetch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload")) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")

	d := New(srv.Client(), Config{ProcessLimit: 4, Retries: 1}, testLogger())
	results := d.Fetch(context.Background(), []Request{
		{URL: srv.URL, Target: target, ExpectedHash: IgnoreHash},
	})

	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("Fetch results = %+v, want single success", results)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}

	if string(got) != "payload" {
		t.Errorf("content = %q, want %q", got, "payload")
	}
}

func TestHTTPDownloader_Fetch_HashMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload")) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")

	d := New(srv.Client(), Config{ProcessLimit: 1, Retries: 1}, testLogger())
	results := d.Fetch(context.Background(), []Request{
		{URL: srv.URL, Target: target, ExpectedHash: "deadbeef"},
	})

	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("Fetch results = %+v, want hash mismatch error", results)
	}
}

func TestHTTPDownloader_Fetch_ServerErrorRetriesThenFails(t *testing.T) {
	t.Parallel()

	var attempts int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")

	d := New(srv.Client(), Config{ProcessLimit: 1, Retries: 2}, testLogger())
	results := d.Fetch(context.Background(), []Request{
		{URL: srv.URL, Target: target, ExpectedHash: IgnoreHash},
	})

	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("Fetch results = %+v, want terminal failure after retries", results)
	}

	if attempts < 2 {
		t.Errorf("attempts = %d, want at least 2 (retried)", attempts)
	}
}

func TestFake_Fetch(t *testing.T) {
	t.Parallel()

	written := make(map[string][]byte)
	fake := NewFake(func(target string, data []byte) error {
		written[target] = data

		return nil
	})
	fake.Contents["http://example.test/a"] = []byte("aaa")
	fake.Failing["http://example.test/b"] = context.DeadlineExceeded

	results := fake.Fetch(context.Background(), []Request{
		{URL: "http://example.test/a", Target: "/a"},
		{URL: "http://example.test/b", Target: "/b"},
	})

	if results[0].Err != nil {
		t.Errorf("first request should succeed, got %v", results[0].Err)
	}

	if results[1].Err == nil {
		t.Error("second request should fail")
	}

	if string(written["/a"]) != "aaa" {
		t.Errorf("written[/a] = %q, want %q", written["/a"], "aaa")
	}
}
