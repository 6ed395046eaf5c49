package tuitest

import (
	"fmt"
	"time"
)

var (
	// KeyEnter sends a carriage return to the PTY.
	KeyEnter = []byte{'\r'}
	// KeyCtrlC requests the program to terminate.
	KeyCtrlC = []byte{3}
	// KeyEsc dismisses popups and leaves the composer.
	KeyEsc = []byte{27}
	// KeyTab moves focus into the conversation composer.
	KeyTab = []byte{'\t'}
)

// X10 mouse button codes as reported by xterm cell-motion tracking.
const (
	mouseButtonLeft    = 0
	mouseButtonRelease = 3
	mouseMotionFlag    = 32
)

// MousePress encodes a left button press at the zero-based cell (x, y).
func MousePress(x, y int) []byte {
	return mouseEvent(mouseButtonLeft, x, y)
}

// MouseDrag encodes left button motion to the zero-based cell (x, y).
func MouseDrag(x, y int) []byte {
	return mouseEvent(mouseButtonLeft|mouseMotionFlag, x, y)
}

// MouseRelease encodes a button release at the zero-based cell (x, y).
func MouseRelease(x, y int) []byte {
	return mouseEvent(mouseButtonRelease, x, y)
}

// Steps interleaves inputs with a fixed pause before each one.
func Steps(pause time.Duration, inputs ...[]byte) []Step {
	steps := make([]Step, 0, len(inputs))
	for _, in := range inputs {
		steps = append(steps, Step{Delay: pause, Input: in})
	}
	return steps
}

func mouseEvent(button, x, y int) []byte {
	if x < 0 || y < 0 || x > 222 || y > 222 {
		panic(fmt.Sprintf("tuitest: mouse cell (%d,%d) out of X10 range", x, y))
	}
	return []byte{0x1b, '[', 'M', byte(32 + button), byte(33 + x), byte(33 + y)}
}
