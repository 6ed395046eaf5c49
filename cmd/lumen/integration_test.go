package main

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/csheth/lumen/internal/tuitest"
)

const fixtureChapter = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>One</title></head>
<body><h1>Chapter One</h1><p>It is a truth universally acknowledged, that a single man in possession of a good fortune, must be in want of a wife.</p></body></html>`

func TestReadSelectExplainAndRecent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pty harness needs a unix terminal")
	}
	cmdDir := moduleDir(t)
	binary := buildBinary(t, cmdDir)
	state := t.TempDir()
	book := writeFixtureEPUB(t, state)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"simplified":"A plain explanation."}`))
	}))
	t.Cleanup(backend.Close)

	env := []string{
		"HOME=" + state,
		"XDG_STATE_HOME=" + state,
		"XDG_CONFIG_HOME=" + state,
		"XDG_CACHE_HOME=" + state,
		"LUMEN_ENDPOINT=" + backend.URL,
		"LUMEN_DICTIONARY_URL=",
		"OPENAI_API_KEY=",
	}

	steps := []tuitest.Step{{Delay: 500 * time.Millisecond}}
	steps = append(steps, tuitest.Steps(50*time.Millisecond,
		tuitest.MousePress(1, 1),
		tuitest.MouseRelease(1, 1),
	)...)
	steps = append(steps, tuitest.Steps(time.Second, []byte("e"), []byte("q"))...)

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "--no-alt-screen", "read", book},
		Dir:     state,
		Env:     env,
		Width:   100,
		Height:  30,
		Steps:   steps,
		Timeout: 15 * time.Second,

		WaitForMouse: true,
	})
	if err != nil {
		t.Fatalf("run reader: %v", err)
	}
	if rec.AltScreen {
		t.Fatal("--no-alt-screen should keep the main screen")
	}
	if rec.MouseEnabled {
		t.Fatal("mouse tracking should be switched off on exit")
	}
	screen := rec.PlainText()
	for _, want := range []string{"Integration Book", "Chapter One", "Selection", "A plain explanation."} {
		if !strings.Contains(screen, want) {
			t.Fatalf("screen missing %q:\n%s", want, screen)
		}
	}

	cmd := exec.Command(binary, "recent")
	cmd.Dir = state
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("recent: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "Integration Book") || !strings.Contains(string(out), "epub") {
		t.Fatalf("recent output missing book:\n%s", out)
	}
}

func moduleDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Dir(file)
}

func buildBinary(t *testing.T, cmdDir string) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "lumen-integration")
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build CLI: %v\n%s", err, output)
	}
	return binPath
}

func writeFixtureEPUB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fixture.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create epub: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	files := []struct{ name, body string }{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
<rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`},
		{"OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Integration Book</dc:title><dc:creator>Test Author</dc:creator></metadata>
<manifest><item id="c1" href="ch1.xhtml" media-type="application/xhtml+xml"/></manifest>
<spine><itemref idref="c1"/></spine>
</package>`},
		{"OEBPS/ch1.xhtml", fixtureChapter},
	}
	for _, file := range files {
		w, err := zw.Create(file.name)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := w.Write([]byte(file.body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return path
}
