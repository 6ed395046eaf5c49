// Package selection turns a stream of intermediate selection states into a
// single stable selection, the way a reader drags across text.
package selection

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Default stabilization windows. Single words settle quickly; phrases are
// usually still being extended while the reader drags.
const (
	DefaultSingleWordDelay = 200 * time.Millisecond
	DefaultMultiWordDelay  = 1000 * time.Millisecond
)

var whitespace = regexp.MustCompile(`\s+`)

var lastID int64

func nextID() int {
	return int(atomic.AddInt64(&lastID, 1))
}

// Anchor locates a selection inside the document.
type Anchor struct {
	Chapter   int
	StartLine int
	EndLine   int
}

// Selection is a stable (text, anchor) pair.
type Selection struct {
	Text   string
	Anchor Anchor
}

// Words counts whitespace-separated words in the selection.
func (s Selection) Words() int {
	return len(strings.Fields(s.Text))
}

// StableMsg fires when a pending selection has stopped changing. Pass it to
// Capture.Resolve; superseded messages resolve to nothing.
type StableMsg struct {
	id  int
	seq int
}

// Capture holds at most one pending selection. Every Observe supersedes the
// previous pending selection and restarts its timer.
type Capture struct {
	id      int
	seq     int
	pending *Selection

	SingleWordDelay time.Duration
	MultiWordDelay  time.Duration
}

// NewCapture returns a Capture with the default delays.
func NewCapture() *Capture {
	return &Capture{
		id:              nextID(),
		SingleWordDelay: DefaultSingleWordDelay,
		MultiWordDelay:  DefaultMultiWordDelay,
	}
}

// Normalize collapses internal whitespace and trims the selection text.
func Normalize(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// IsSingleWord reports whether text is one token with no internal whitespace.
func IsSingleWord(text string) bool {
	text = strings.TrimSpace(text)
	return text != "" && !strings.ContainsAny(text, " \t\r\n")
}

// DelayFor returns the stabilization window for the given text.
func (c *Capture) DelayFor(text string) time.Duration {
	if IsSingleWord(text) {
		return c.SingleWordDelay
	}
	return c.MultiWordDelay
}

// Observe records a new selection state. Empty selections cancel any pending
// one and return nil. Otherwise the returned command delivers a StableMsg once
// the delay elapses.
func (c *Capture) Observe(sel Selection) tea.Cmd {
	sel.Text = Normalize(sel.Text)
	if sel.Text == "" {
		c.Cancel()
		return nil
	}
	c.seq++
	c.pending = &sel
	msg := StableMsg{id: c.id, seq: c.seq}
	return tea.Tick(c.DelayFor(sel.Text), func(time.Time) tea.Msg {
		return msg
	})
}

// Cancel drops the pending selection; in-flight ticks resolve to nothing.
func (c *Capture) Cancel() {
	c.seq++
	c.pending = nil
}

// Pending reports whether a selection is waiting to stabilize.
func (c *Capture) Pending() bool {
	return c.pending != nil
}

// Resolve returns the stable selection when msg belongs to this capture and
// nothing has superseded it since.
func (c *Capture) Resolve(msg StableMsg) (Selection, bool) {
	if msg.id != c.id || msg.seq != c.seq || c.pending == nil {
		return Selection{}, false
	}
	sel := *c.pending
	c.pending = nil
	return sel, true
}
