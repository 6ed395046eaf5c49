// Package threads persists saved conversation threads in a JSON file so a
// thread can be reopened the next time its passage is selected.
package threads

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/csheth/lumen/internal/conversation"
)

const entryTypeThread = "thread"

type entryHeader struct {
	EntryType string `json:"entryType"`
}

// Thread is a saved conversation anchored to a passage of one document.
type Thread struct {
	EntryType     string              `json:"entryType"`
	DocumentID    string              `json:"documentId"`
	DocumentTitle string              `json:"documentTitle"`
	AnchorText    string              `json:"anchorText"`
	ChapterTitle  string              `json:"chapterTitle,omitempty"`
	Scope         conversation.Scope  `json:"scope,omitempty"`
	Turns         []conversation.Turn `json:"turns"`
	SavedAt       time.Time           `json:"savedAt"`
}

// Store reads and writes the thread file. Entries of other types written by
// newer versions are preserved untouched.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore returns a store backed by path. The file is created on first save.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path is the backing file.
func (s *Store) Path() string { return s.path }

// FromConversation builds a thread from a store snapshot.
func FromConversation(docID, docTitle string, c *conversation.Conversation) (Thread, bool) {
	if c == nil || len(c.Turns) == 0 {
		return Thread{}, false
	}
	return Thread{
		DocumentID:    docID,
		DocumentTitle: docTitle,
		AnchorText:    c.AnchorText,
		ChapterTitle:  c.ChapterTitle,
		Scope:         c.Scope,
		Turns:         append([]conversation.Turn(nil), c.Turns...),
	}, true
}

// Save writes the thread, replacing any saved thread with the same anchor in
// the same document.
func (s *Store) Save(t Thread) error {
	if s.path == "" || t.DocumentID == "" || len(t.Turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t.EntryType = entryTypeThread
	if t.SavedAt.IsZero() {
		t.SavedAt = s.now()
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}

	entries, err := loadEntries(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	replaced := false
	for i, entry := range entries {
		existing, ok, err := decodeThread(entry)
		if err != nil {
			return err
		}
		if ok && sameAnchor(existing, t.DocumentID, t.AnchorText) {
			entries[i] = raw
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, raw)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return writeEntries(s.path, entries)
}

// Find returns the saved thread for a passage, if any.
func (s *Store) Find(docID, anchor string) (Thread, bool, error) {
	threads, err := s.List(docID)
	if err != nil {
		return Thread{}, false, err
	}
	for _, t := range threads {
		if sameAnchor(t, docID, anchor) {
			return t, true, nil
		}
	}
	return Thread{}, false, nil
}

// List returns the threads of one document, newest first. An empty docID
// lists every document.
func (s *Store) List(docID string) ([]Thread, error) {
	s.mu.Lock()
	entries, err := loadEntries(s.path)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var threads []Thread
	for _, entry := range entries {
		t, ok, err := decodeThread(entry)
		if err != nil {
			return nil, err
		}
		if !ok || (docID != "" && t.DocumentID != docID) {
			continue
		}
		threads = append(threads, t)
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].SavedAt.After(threads[j].SavedAt)
	})
	return threads, nil
}

// Delete removes the saved thread for a passage. It reports whether one existed.
func (s *Store) Delete(docID, anchor string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := loadEntries(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	kept := entries[:0]
	removed := false
	for _, entry := range entries {
		t, ok, err := decodeThread(entry)
		if err != nil {
			return false, err
		}
		if ok && sameAnchor(t, docID, anchor) {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return false, nil
	}
	return true, writeEntries(s.path, kept)
}

func sameAnchor(t Thread, docID, anchor string) bool {
	return t.DocumentID == docID && normalizeAnchor(t.AnchorText) == normalizeAnchor(anchor)
}

func normalizeAnchor(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func decodeThread(raw json.RawMessage) (Thread, bool, error) {
	var header entryHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return Thread{}, false, err
	}
	if header.EntryType != entryTypeThread {
		return Thread{}, false, nil
	}
	var t Thread
	if err := json.Unmarshal(raw, &t); err != nil {
		return Thread{}, false, err
	}
	return t, true, nil
}

func writeEntries(path string, entries []json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadEntries(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
