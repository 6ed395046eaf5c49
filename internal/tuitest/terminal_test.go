package tuitest

import (
	"bytes"
	"testing"
)

func TestTerminalAnswersQueriesSplitAcrossReads(t *testing.T) {
	var replies bytes.Buffer
	term := newTerminal(&replies)

	term.Process([]byte("hello\x1b]11"))
	term.Process([]byte(";?\x07world\x1b[6n"))

	want := "\x1b]11;rgb:0000/0000/0000\x07\x1b[1;1R"
	if replies.String() != want {
		t.Fatalf("replies = %q, want %q", replies.String(), want)
	}
}

func TestTerminalTracksMouseMode(t *testing.T) {
	term := newTerminal(&bytes.Buffer{})
	select {
	case <-term.MouseReady():
		t.Fatal("mouse should not be ready before it is enabled")
	default:
	}

	term.Process([]byte("\x1b[?1049h\x1b[?1002h"))
	select {
	case <-term.MouseReady():
	default:
		t.Fatal("enabling cell motion should mark the mouse ready")
	}
	if !term.Mouse() || !term.AltScreen() {
		t.Fatalf("mouse=%v alt=%v, want both on", term.Mouse(), term.AltScreen())
	}

	term.Process([]byte("\x1b[?1002l"))
	if term.Mouse() {
		t.Fatal("disabling cell motion should turn the mouse off")
	}
}
