package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"evm-tx-monitor/internal/app"
)

const (
	escAltScreenOn  = "\x1b[?1049h"
	escAltScreenOff = "\x1b[?1049l"
	escHideCursor   = "\x1b[?25l"
	escShowCursor   = "\x1b[?25h"
)

// Terminal owns the controlling terminal while the monitor runs.
type Terminal struct {
	in    *os.File
	out   *os.File
	state *term.State
}

// IsTerminal reports whether f is connected to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Open switches in to raw mode and out to the alternate screen.
// Callers must Restore before exiting.
func Open(in, out *os.File) (*Terminal, error) {
	if !IsTerminal(in) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}
	state, err := term.MakeRaw(int(in.Fd()))
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}
	t := &Terminal{in: in, out: out, state: state}
	if _, err := io.WriteString(out, escAltScreenOn+escHideCursor); err != nil {
		_ = term.Restore(int(in.Fd()), state)
		return nil, fmt.Errorf("switch screen: %w", err)
	}
	return t, nil
}

// Size returns the terminal width and height.
func (t *Terminal) Size() (width, height int, err error) {
	return term.GetSize(int(t.out.Fd()))
}

// Restore leaves the alternate screen and restores the original mode.
func (t *Terminal) Restore() error {
	_, _ = io.WriteString(t.out, escReset+escShowCursor+escAltScreenOff)
	return term.Restore(int(t.in.Fd()), t.state)
}

// minFrameInterval caps the redraw rate.
const minFrameInterval = 33 * time.Millisecond

// Source is what the render loop draws from.
type Source interface {
	Snapshot() *app.Snapshot
	Redraw() <-chan struct{}
}

// RenderLoop draws a frame whenever src publishes, and at least every
// refresh so size changes and the filter prompt show up promptly.
func RenderLoop(ctx context.Context, r *Renderer, src Source, size func() (int, int, error), editing func() bool, refresh time.Duration) error {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-src.Redraw():
		case <-ticker.C:
		}

		if wait := minFrameInterval - time.Since(last); wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}

		w, h, err := size()
		if err != nil {
			return fmt.Errorf("terminal size: %w", err)
		}
		if err := r.Render(src.Snapshot(), w, h, editing()); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		last = time.Now()
	}
}
