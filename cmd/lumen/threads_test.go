package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/csheth/lumen/internal/conversation"
	"github.com/csheth/lumen/internal/threads"
)

func TestRenderThreadsNumbersRows(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	out := renderThreads([]threads.Thread{
		{DocumentTitle: "Emma", AnchorText: "perspicacious", Turns: make([]conversation.Turn, 3), SavedAt: now.Add(-2 * time.Hour)},
	}, now)
	for _, want := range []string{"Emma", "perspicacious", "3", "2h ago", "Passage"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestDeleteThreadByListingPosition(t *testing.T) {
	store := threads.NewStore(filepath.Join(t.TempDir(), "threads.json"))
	turns := []conversation.Turn{{ID: "t1", Role: conversation.RoleAssistant, Content: "keen insight"}}
	if err := store.Save(threads.Thread{DocumentID: "doc", AnchorText: "perspicacious", Turns: turns}); err != nil {
		t.Fatalf("save: %v", err)
	}
	list, err := store.List("doc")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, %v", list, err)
	}

	if err := deleteThread(&bytes.Buffer{}, store, list, 2); err == nil {
		t.Fatal("out of range position should fail")
	}
	var out bytes.Buffer
	if err := deleteThread(&out, store, list, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out.String(), "perspicacious") {
		t.Fatalf("output = %q", out.String())
	}
	if _, found, _ := store.Find("doc", "perspicacious"); found {
		t.Fatal("thread should be gone")
	}
}

func TestClipKeepsShortText(t *testing.T) {
	if got := clip("short", 10); got != "short" {
		t.Fatalf("clip = %q", got)
	}
	if got := clip("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("clip = %q", got)
	}
}
