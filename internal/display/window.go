// Package display shows annotated frames in a HighGUI window and reads the
// operator's keyboard.
package display

import (
	"gocv.io/x/gocv"
)

// DefaultTitle is the title of the preview window.
const DefaultTitle = "handpilot"

// KeyNone is returned by PollKey when no key was pressed.
const KeyNone = -1

// KeyEscape is the escape key code.
const KeyEscape = 27

// Window is a preview window. All methods must be called from the goroutine
// that created it.
type Window struct {
	win    *gocv.Window
	closed bool
}

// NewWindow opens a window titled title.
func NewWindow(title string) *Window {
	if title == "" {
		title = DefaultTitle
	}
	return &Window{win: gocv.NewWindow(title)}
}

// Show draws img in the window.
func (w *Window) Show(img *gocv.Mat) {
	if w.closed || img == nil || img.Empty() {
		return
	}
	w.win.IMShow(*img)
}

// PollKey waits one millisecond for a key press and returns its low byte, or
// KeyNone. It also gives the window time to process its events.
func (w *Window) PollKey() int {
	if w.closed {
		return KeyNone
	}
	key := w.win.WaitKey(1)
	if key < 0 {
		return KeyNone
	}
	return key & 0xFF
}

// Closed reports whether the operator closed the window.
func (w *Window) Closed() bool {
	if w.closed {
		return true
	}
	return w.win.GetWindowProperty(gocv.WindowPropertyVisible) < 1
}

// Close destroys the window. It is safe to call more than once.
func (w *Window) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.win.Close()
}
