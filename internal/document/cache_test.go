package document

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCacheReusesFreshFile(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Etag", `"v1"`)
		_, _ = w.Write([]byte("%PDF-1.4\nHello"))
	}))
	t.Cleanup(server.Close)

	cache, err := NewCache(t.TempDir(), server.Client(), nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	ctx := context.Background()

	path, err := cache.Fetch(ctx, server.URL+"/books/emma.pdf")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if filepath.Ext(path) != ".pdf" {
		t.Fatalf("cached path should keep the extension, got %s", path)
	}
	if hits != 1 {
		t.Fatalf("expected single download, got %d hits", hits)
	}

	path2, err := cache.Fetch(ctx, server.URL+"/books/emma.pdf")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if path != path2 {
		t.Fatalf("paths differ: %s vs %s", path, path2)
	}
	if hits != 1 {
		t.Fatalf("fresh cache triggered download, total hits %d", hits)
	}
}

func TestCacheRevalidatesStaleFile(t *testing.T) {
	var conditional bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional = true
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Etag", `"v1"`)
		_, _ = w.Write([]byte("PK epub bytes"))
	}))
	t.Cleanup(server.Close)

	cache, err := NewCache(t.TempDir(), server.Client(), nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	ctx := context.Background()
	url := server.URL + "/books/emma.epub"

	path, err := cache.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("initial fetch: %v", err)
	}

	// Age the file to force a conditional request.
	old := time.Now().Add(-(cacheTTL + time.Hour))
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	got, err := cache.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("conditional fetch: %v", err)
	}
	if !conditional {
		t.Fatal("expected an If-None-Match request for a stale file")
	}
	if got != path {
		t.Fatalf("unexpected path %s", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if time.Since(info.ModTime()) > time.Minute {
		t.Fatal("revalidated file should be marked fresh")
	}
}

func TestCacheResumesPartialDownload(t *testing.T) {
	var rangeHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader = r.Header.Get("Range")
		w.Header().Set("Etag", `"resume"`)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("world"))
	}))
	t.Cleanup(server.Close)

	cache, err := NewCache(t.TempDir(), server.Client(), nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	url := server.URL + "/books/resume.pdf"
	p := cache.pathsFor(url)

	if err := os.WriteFile(p.partial, []byte("hello "), 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	if err := writeMeta(p.meta, cacheMeta{ETag: `"resume"`}); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	path, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("resume failed, got %q", string(data))
	}
	if rangeHeader != fmt.Sprintf("bytes=%d-", len("hello ")) {
		t.Fatalf("expected range header, got %q", rangeHeader)
	}
	if _, err := os.Stat(p.partial); !os.IsNotExist(err) {
		t.Fatalf("partial file should be removed, err=%v", err)
	}
}

func TestCacheServesStaleCopyWhenRefreshFails(t *testing.T) {
	fail := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(server.Close)

	cache, err := NewCache(t.TempDir(), server.Client(), nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	url := server.URL + "/a.pdf"
	path, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	old := time.Now().Add(-(cacheTTL + time.Hour))
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fail = true
	got, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("stale copy should be served: %v", err)
	}
	if got != path {
		t.Fatalf("unexpected path %s", got)
	}

	if _, err := cache.Fetch(context.Background(), server.URL+"/missing.pdf"); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected download error, got %v", err)
	}
}

func TestCacheForgetRemovesCopy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4\nHello"))
	}))
	t.Cleanup(server.Close)

	cache, err := NewCache(t.TempDir(), server.Client(), nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	url := server.URL + "/download?id=7"
	path, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	meta, err := readMeta(cache.pathsFor(url).meta)
	if err != nil || meta.ContentType != "application/pdf" {
		t.Fatalf("meta = %+v, %v", meta, err)
	}
	if kind, err := SniffType(path); err != nil || kind != TypePDF {
		t.Fatalf("sniff = %q, %v", kind, err)
	}

	removed, err := cache.Forget(url)
	if err != nil || !removed {
		t.Fatalf("forget = %v, %v", removed, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("cached file still present: %v", err)
	}
	if removed, _ := cache.Forget(url); removed {
		t.Fatal("second forget should find nothing")
	}
}
