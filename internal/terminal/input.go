package terminal

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"evm-tx-monitor/internal/app"
)

// Chrome is the number of screen lines not used by transaction rows.
const Chrome = 3

// ViewportRows returns how many transaction rows fit in a terminal of the given height.
func ViewportRows(height int) int {
	return max(1, height-Chrome)
}

// Input turns keystrokes into app commands.
//
// Key meaning depends on what the user sees, so Input consults the latest
// snapshot for the details pane and the quit prompt. Filter editing is
// local to Input: each edit sends the whole query.
type Input struct {
	snapshot func() *app.Snapshot

	editing atomic.Bool
	query   []rune
}

// NewInput creates an Input. snapshot may return nil before the first publish.
func NewInput(snapshot func() *app.Snapshot) *Input {
	return &Input{snapshot: snapshot}
}

// Editing reports whether the filter prompt is active. Safe for concurrent use.
func (in *Input) Editing() bool {
	return in.editing.Load()
}

// Translate maps one key to zero or more commands.
func (in *Input) Translate(k Key) []app.Command {
	if k.Code == KeyCtrlC {
		return []app.Command{app.Quit()}
	}

	snap := in.snapshot()
	if snap != nil && snap.ConfirmQuit {
		if k.Code == KeyRune && (k.Rune == 'y' || k.Rune == 'Y' || k.Rune == 'q') {
			return []app.Command{app.Quit()}
		}
		return []app.Command{app.CancelQuit()}
	}

	if in.editing.Load() {
		return in.edit(k)
	}

	details := snap != nil && snap.Details != nil
	switch k.Code {
	case KeyUp:
		return []app.Command{app.Scroll(-1)}
	case KeyDown:
		return []app.Command{app.Scroll(1)}
	case KeyPageUp:
		return []app.Command{app.PageScroll(-1)}
	case KeyPageDown:
		return []app.Command{app.PageScroll(1)}
	case KeyHome:
		return []app.Command{app.JumpFirst()}
	case KeyEnd:
		return []app.Command{app.JumpLast()}
	case KeyEnter:
		if details {
			return []app.Command{app.HideDetails()}
		}
		return []app.Command{app.ShowDetails()}
	case KeyEsc:
		if details {
			return []app.Command{app.HideDetails()}
		}
		if snap != nil && snap.Filter != "" {
			return []app.Command{app.ClearFilter()}
		}
		return nil
	case KeyRune:
		return in.rune(k.Rune, details)
	}
	return nil
}

func (in *Input) rune(r rune, details bool) []app.Command {
	switch r {
	case 'k':
		return []app.Command{app.Scroll(-1)}
	case 'j':
		return []app.Command{app.Scroll(1)}
	case ' ':
		return []app.Command{app.PageScroll(1)}
	case 'b':
		return []app.Command{app.PageScroll(-1)}
	case 'g':
		return []app.Command{app.JumpFirst()}
	case 'G':
		return []app.Command{app.JumpLast()}
	case 's':
		return []app.Command{app.ToggleSort()}
	case 'c':
		return []app.Command{app.Clear()}
	case 'r':
		return []app.Command{app.Reconnect()}
	case 'd':
		if details {
			return []app.Command{app.HideDetails()}
		}
		return []app.Command{app.ShowDetails()}
	case '/':
		in.editing.Store(true)
		if snap := in.snapshot(); snap != nil {
			in.query = []rune(snap.Filter)
		}
		return nil
	case 'q':
		return []app.Command{app.AskQuit()}
	}
	return nil
}

func (in *Input) edit(k Key) []app.Command {
	switch k.Code {
	case KeyEnter:
		in.editing.Store(false)
		return nil
	case KeyEsc:
		in.editing.Store(false)
		in.query = nil
		return []app.Command{app.ClearFilter()}
	case KeyBackspace:
		if len(in.query) == 0 {
			return nil
		}
		in.query = in.query[:len(in.query)-1]
	case KeyRune:
		in.query = append(in.query, k.Rune)
	default:
		return nil
	}
	return []app.Command{app.SetFilter(string(in.query))}
}

// Run reads r until EOF or ctx is done and sends translated commands.
// The blocking read runs in its own goroutine and is abandoned on cancel.
func (in *Input) Run(ctx context.Context, r io.Reader, out chan<- app.Command) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case chunk := <-chunks:
			for _, k := range ParseKeys(chunk) {
				for _, cmd := range in.Translate(k) {
					select {
					case out <- cmd:
					case <-ctx.Done():
						return nil
					}
				}
			}
		}
	}
}

// WatchSize polls the terminal height and sends Resize when it changes.
func WatchSize(ctx context.Context, size func() (width, height int, err error), interval time.Duration, out chan<- app.Command) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		if _, h, err := size(); err == nil && h != last {
			last = h
			select {
			case out <- app.Resize(ViewportRows(h)):
			case <-ctx.Done():
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
