package tuitest

import (
	"bytes"
	"io"
	"sync"
)

// queryReply is a terminal query the program may send and the canned answer
// a real xterm would give.
type queryReply struct {
	query []byte
	reply []byte
}

var queryReplies = []queryReply{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b]10;?\x07"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{[]byte("\x1b]10;?\x1b\\"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{[]byte("\x1b]11;?\x07"), []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{[]byte("\x1b]11;?\x1b\\"), []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

// Mode switches the reader toggles. Cell motion (1002) is what bubbletea
// enables for WithMouseCellMotion; all motion (1003) also counts as mouse on.
var (
	mouseOn   = [][]byte{[]byte("\x1b[?1002h"), []byte("\x1b[?1003h")}
	mouseOff  = [][]byte{[]byte("\x1b[?1002l"), []byte("\x1b[?1003l")}
	altScreen = []byte("\x1b[?1049h")
)

// terminal answers queries written by the program and tracks the modes it
// switches on, so scripts can wait until mouse input will be understood.
type terminal struct {
	w   io.Writer
	buf []byte

	mu         sync.Mutex
	mouse      bool
	alt        bool
	mouseReady chan struct{}
	readyOnce  sync.Once
}

func newTerminal(w io.Writer) *terminal {
	return &terminal{w: w, buf: make([]byte, 0, 128), mouseReady: make(chan struct{})}
}

// Process inspects one chunk of program output.
func (t *terminal) Process(chunk []byte) {
	t.buf = append(t.buf, chunk...)
	t.trackModes()
	t.answerQueries()
	// Keep a small tail so sequences split across reads are still seen.
	if len(t.buf) > 256 {
		t.buf = t.buf[len(t.buf)-64:]
	}
}

// MouseReady is closed the first time the program enables mouse tracking.
func (t *terminal) MouseReady() <-chan struct{} { return t.mouseReady }

// Mouse reports whether mouse tracking is currently enabled.
func (t *terminal) Mouse() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mouse
}

// AltScreen reports whether the program switched to the alternate screen.
func (t *terminal) AltScreen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alt
}

func (t *terminal) trackModes() {
	on := lastIndexAny(t.buf, mouseOn)
	off := lastIndexAny(t.buf, mouseOff)
	t.mu.Lock()
	defer t.mu.Unlock()
	if on >= 0 || off >= 0 {
		t.mouse = on > off
	}
	if bytes.Contains(t.buf, altScreen) {
		t.alt = true
	}
	if t.mouse {
		t.readyOnce.Do(func() { close(t.mouseReady) })
	}
}

// answerQueries replies in the order the queries were written.
func (t *terminal) answerQueries() {
	for {
		first, match := -1, queryReply{}
		for _, qr := range queryReplies {
			if idx := bytes.Index(t.buf, qr.query); idx >= 0 && (first < 0 || idx < first) {
				first, match = idx, qr
			}
		}
		if first < 0 {
			return
		}
		t.buf = t.buf[first+len(match.query):]
		_, _ = t.w.Write(match.reply)
	}
}

func lastIndexAny(buf []byte, patterns [][]byte) int {
	last := -1
	for _, p := range patterns {
		if idx := bytes.LastIndex(buf, p); idx > last {
			last = idx
		}
	}
	return last
}
