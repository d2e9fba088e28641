package terminal

import (
	"io"
	"os"

	"golang.org/x/term"
)

const (
	enterAltScreen = "\x1b[?1049h\x1b[?25l"
	leaveAltScreen = "\x1b[?25h\x1b[?1049l"
	enableFocus    = "\x1b[?1004h"
	disableFocus   = "\x1b[?1004l"
)

// Screen holds the terminal in raw mode on the alternate screen with focus
// reporting enabled until Restore is called.
type Screen struct {
	in    *os.File
	out   io.Writer
	state *term.State
}

// OpenScreen prepares in/out for the exam. When in is not a terminal the
// screen is still usable but focus changes cannot be observed.
func OpenScreen(in *os.File, out io.Writer) (*Screen, error) {
	s := &Screen{in: in, out: out}
	if term.IsTerminal(int(in.Fd())) {
		state, err := term.MakeRaw(int(in.Fd()))
		if err != nil {
			return nil, err
		}
		s.state = state
	}
	_, err := io.WriteString(out, enterAltScreen+enableFocus)
	return s, err
}

// Interactive reports whether raw mode is active.
func (s *Screen) Interactive() bool { return s.state != nil }

// Width returns the terminal width or zero when unknown.
func (s *Screen) Width() int {
	w, _, err := term.GetSize(int(s.in.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// Restore leaves the alternate screen and the raw mode. It is safe to call
// more than once.
func (s *Screen) Restore() error {
	_, _ = io.WriteString(s.out, disableFocus+leaveAltScreen)
	if s.state == nil {
		return nil
	}
	state := s.state
	s.state = nil
	return term.Restore(int(s.in.Fd()), state)
}
