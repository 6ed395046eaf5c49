package threads

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/csheth/lumen/internal/conversation"
)

func turns(contents ...string) []conversation.Turn {
	out := make([]conversation.Turn, 0, len(contents))
	for i, c := range contents {
		role := conversation.RoleAssistant
		if i%2 == 1 {
			role = conversation.RoleUser
		}
		out = append(out, conversation.Turn{ID: c, Role: role, Content: c, CreatedAt: time.Unix(int64(i), 0).UTC()})
	}
	return out
}

func TestSaveAndFindRoundTrip(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "state", "threads.json"))

	thread := Thread{
		DocumentID:    "doc-1",
		DocumentTitle: "Emma",
		AnchorText:    "handsome, clever, and rich",
		Scope:         conversation.ScopeChapter,
		Turns:         turns("An ironic introduction.", "Why ironic?", "Because Emma is spoiled."),
	}
	if err := store.Save(thread); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := store.Find("doc-1", "  handsome,\nclever,  and rich ")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if !ok {
		t.Fatal("expected saved thread to be found with whitespace-insensitive anchor")
	}
	if len(got.Turns) != 3 || got.Turns[2].Content != "Because Emma is spoiled." {
		t.Fatalf("unexpected turns: %#v", got.Turns)
	}
	if got.EntryType != entryTypeThread || got.SavedAt.IsZero() {
		t.Fatalf("entry metadata missing: %#v", got)
	}

	if _, ok, _ := store.Find("doc-2", thread.AnchorText); ok {
		t.Fatal("threads must be scoped to their document")
	}
}

func TestSaveReplacesSameAnchor(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "threads.json"))
	base := Thread{DocumentID: "doc", AnchorText: "passage", Turns: turns("first")}
	if err := store.Save(base); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	base.Turns = turns("first", "more?", "second")
	if err := store.Save(base); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(Thread{DocumentID: "doc", AnchorText: "other", Turns: turns("x")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	list, err := store.List("doc")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(list))
	}
	got, _, _ := store.Find("doc", "passage")
	if len(got.Turns) != 3 {
		t.Fatalf("expected replaced thread with 3 turns, got %d", len(got.Turns))
	}
}

func TestListOrdersNewestFirstAndKeepsForeignEntries(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "threads.json")
	if err := os.WriteFile(path, []byte(`[{"entryType":"bookmark","documentId":"doc"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewStore(path)
	older := Thread{DocumentID: "doc", AnchorText: "a", Turns: turns("a"), SavedAt: time.Unix(100, 0)}
	newer := Thread{DocumentID: "doc", AnchorText: "b", Turns: turns("b"), SavedAt: time.Unix(200, 0)}
	for _, th := range []Thread{older, newer} {
		if err := store.Save(th); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	list, err := store.List("")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].AnchorText != "b" {
		t.Fatalf("unexpected order: %#v", list)
	}

	entries, err := loadEntries(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("foreign entry should be preserved, have %d entries", len(entries))
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "threads.json"))
	if removed, err := store.Delete("doc", "a"); err != nil || removed {
		t.Fatalf("Delete() on missing file = %v, %v", removed, err)
	}
	if err := store.Save(Thread{DocumentID: "doc", AnchorText: "a", Turns: turns("a")}); err != nil {
		t.Fatal(err)
	}
	removed, err := store.Delete("doc", "a")
	if err != nil || !removed {
		t.Fatalf("Delete() = %v, %v", removed, err)
	}
	if _, ok, _ := store.Find("doc", "a"); ok {
		t.Fatal("thread should be gone")
	}
}

func TestFromConversation(t *testing.T) {
	t.Parallel()
	if _, ok := FromConversation("doc", "T", nil); ok {
		t.Fatal("nil conversation should not produce a thread")
	}
	conv := &conversation.Conversation{
		AnchorText:   "anchor",
		ChapterTitle: "Chapter 2",
		Scope:        conversation.ScopeBook,
		Turns:        turns("hello"),
	}
	th, ok := FromConversation("doc", "T", conv)
	if !ok || th.AnchorText != "anchor" || th.Scope != conversation.ScopeBook || th.ChapterTitle != "Chapter 2" {
		t.Fatalf("unexpected thread: %#v", th)
	}
	conv.Turns[0].Content = "mutated"
	if th.Turns[0].Content != "hello" {
		t.Fatal("thread turns should be copied")
	}
}

func TestSaveIgnoresEmptyThreads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "threads.json")
	store := NewStore(path)
	if err := store.Save(Thread{DocumentID: "doc", AnchorText: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("empty thread should not create the file, err=%v", err)
	}
}
