package tuitest

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestMouseEncodingIsOneBased(t *testing.T) {
	got := MousePress(0, 1)
	want := []byte{0x1b, '[', 'M', 32, 33, 34}
	if !bytes.Equal(got, want) {
		t.Fatalf("press = %v, want %v", got, want)
	}
	if rel := MouseRelease(4, 2); rel[3] != 35 || rel[4] != 37 || rel[5] != 35 {
		t.Fatalf("release = %v", rel)
	}
	if drag := MouseDrag(0, 0); drag[3] != 64 {
		t.Fatalf("drag button byte = %d, want 64", drag[3])
	}
}

func TestStepsPausesBeforeEachInput(t *testing.T) {
	steps := Steps(50*time.Millisecond, []byte("e"), KeyEsc)
	if len(steps) != 2 || steps[1].Delay != 50*time.Millisecond || !bytes.Equal(steps[1].Input, KeyEsc) {
		t.Fatalf("unexpected steps: %+v", steps)
	}
}

func TestPlainTextStripsEscapes(t *testing.T) {
	rec := &Recording{Raw: []byte("\x1b[1mLumen\x1b[0m  \r\n\x1b]11;?\x07page 1   \r\n\r\n")}
	if got := rec.PlainText(); got != "Lumen\npage 1" {
		t.Fatalf("plain text = %q", got)
	}
}

func TestParseFramesSplitsOnEraseDisplay(t *testing.T) {
	raw := []byte("\x1b[2J\x1b[Hfirst screen\r\n\x1b[2J\x1b[H\x1b[1msecond\x1b[0m popup\r\n")
	rec := &Recording{Raw: raw, Frames: parseFrames(raw)}
	if len(rec.Frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(rec.Frames))
	}
	if f, ok := rec.FrameWith("popup"); !ok || f.Index != 1 || f.Plain != "second popup" {
		t.Fatalf("FrameWith = %+v, %v", f, ok)
	}
	if _, ok := rec.FrameWith("missing"); ok {
		t.Fatal("FrameWith should report absent text")
	}
	if last, _ := rec.FinalFrame(); last.Index != 1 {
		t.Fatalf("final frame = %d", last.Index)
	}
}

func TestBuildEnvLayersExtraOverBase(t *testing.T) {
	env := buildEnv([]string{"HOME=/home/a", "TERM=screen"}, []string{"HOME=/tmp/b", "LUMEN_DICTIONARY_URL="}, 100, 30)
	want := map[string]bool{
		"HOME=/tmp/b":           true,
		"TERM=screen":           true,
		"LUMEN_DICTIONARY_URL=": true,
		"COLUMNS=100":           true,
		"LINES=30":              true,
	}
	if len(env) != len(want) {
		t.Fatalf("env = %v", env)
	}
	for _, entry := range env {
		if !want[entry] {
			t.Fatalf("unexpected entry %q in %v", entry, env)
		}
	}
	if got := buildEnv(nil, nil, 80, 24); !slices.Contains(got, "TERM=xterm-256color") {
		t.Fatalf("TERM default missing: %v", got)
	}
}

func TestCheckExitAllowsListedCodes(t *testing.T) {
	if err := checkExit(nil, nil, false); err != nil {
		t.Fatalf("clean exit: %v", err)
	}
	if err := checkExit(errors.New("boom"), []int{2}, false); err == nil {
		t.Fatal("unexpected errors should surface")
	}
}
