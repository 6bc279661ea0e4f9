package terminal

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-tx-monitor/internal/app"
	"evm-tx-monitor/internal/domain"
)

func fixedSnapshot(s *app.Snapshot) func() *app.Snapshot {
	return func() *app.Snapshot { return s }
}

func TestInput_Navigation(t *testing.T) {
	in := NewInput(fixedSnapshot(&app.Snapshot{}))

	tests := []struct {
		key  Key
		want app.Command
	}{
		{Key{Code: KeyUp}, app.Scroll(-1)},
		{Key{Code: KeyDown}, app.Scroll(1)},
		{Key{Code: KeyRune, Rune: 'k'}, app.Scroll(-1)},
		{Key{Code: KeyRune, Rune: 'j'}, app.Scroll(1)},
		{Key{Code: KeyPageUp}, app.PageScroll(-1)},
		{Key{Code: KeyPageDown}, app.PageScroll(1)},
		{Key{Code: KeyRune, Rune: ' '}, app.PageScroll(1)},
		{Key{Code: KeyHome}, app.JumpFirst()},
		{Key{Code: KeyRune, Rune: 'G'}, app.JumpLast()},
		{Key{Code: KeyRune, Rune: 's'}, app.ToggleSort()},
		{Key{Code: KeyRune, Rune: 'c'}, app.Clear()},
		{Key{Code: KeyRune, Rune: 'r'}, app.Reconnect()},
		{Key{Code: KeyEnter}, app.ShowDetails()},
		{Key{Code: KeyRune, Rune: 'q'}, app.AskQuit()},
		{Key{Code: KeyCtrlC}, app.Quit()},
	}
	for _, tt := range tests {
		assert.Equal(t, []app.Command{tt.want}, in.Translate(tt.key), "key %+v", tt.key)
	}
	assert.Empty(t, in.Translate(Key{Code: KeyRune, Rune: 'x'}))
	assert.Empty(t, in.Translate(Key{Code: KeyEsc}))
}

func TestInput_DetailsPane(t *testing.T) {
	snap := &app.Snapshot{Details: &domain.DecodedTransaction{}}
	in := NewInput(fixedSnapshot(snap))

	assert.Equal(t, []app.Command{app.HideDetails()}, in.Translate(Key{Code: KeyEnter}))
	assert.Equal(t, []app.Command{app.HideDetails()}, in.Translate(Key{Code: KeyEsc}))
	assert.Equal(t, []app.Command{app.HideDetails()}, in.Translate(Key{Code: KeyRune, Rune: 'd'}))
}

func TestInput_QuitConfirmation(t *testing.T) {
	in := NewInput(fixedSnapshot(&app.Snapshot{ConfirmQuit: true}))

	assert.Equal(t, []app.Command{app.Quit()}, in.Translate(Key{Code: KeyRune, Rune: 'y'}))
	assert.Equal(t, []app.Command{app.Quit()}, in.Translate(Key{Code: KeyRune, Rune: 'q'}))
	assert.Equal(t, []app.Command{app.CancelQuit()}, in.Translate(Key{Code: KeyRune, Rune: 'n'}))
	assert.Equal(t, []app.Command{app.CancelQuit()}, in.Translate(Key{Code: KeyEsc}))
}

func TestInput_FilterEditing(t *testing.T) {
	snap := &app.Snapshot{}
	in := NewInput(func() *app.Snapshot { return snap })

	assert.Empty(t, in.Translate(Key{Code: KeyRune, Rune: '/'}))
	require.True(t, in.Editing())

	assert.Equal(t, []app.Command{app.SetFilter("s")}, in.Translate(Key{Code: KeyRune, Rune: 's'}))
	assert.Equal(t, []app.Command{app.SetFilter("sw")}, in.Translate(Key{Code: KeyRune, Rune: 'w'}))
	// Keys that normally navigate are text while editing.
	assert.Equal(t, []app.Command{app.SetFilter("swq")}, in.Translate(Key{Code: KeyRune, Rune: 'q'}))
	assert.Equal(t, []app.Command{app.SetFilter("sw")}, in.Translate(Key{Code: KeyBackspace}))
	assert.Empty(t, in.Translate(Key{Code: KeyUp}))

	assert.Empty(t, in.Translate(Key{Code: KeyEnter}))
	assert.False(t, in.Editing())

	// Re-entering starts from the active filter; Esc clears it.
	snap = &app.Snapshot{Filter: "sw"}
	in.Translate(Key{Code: KeyRune, Rune: '/'})
	assert.Equal(t, []app.Command{app.SetFilter("swa")}, in.Translate(Key{Code: KeyRune, Rune: 'a'}))
	assert.Equal(t, []app.Command{app.ClearFilter()}, in.Translate(Key{Code: KeyEsc}))
	assert.False(t, in.Editing())

	// Outside the prompt Esc clears an active filter.
	assert.Equal(t, []app.Command{app.ClearFilter()}, in.Translate(Key{Code: KeyEsc}))
}

func TestInput_RunTranslatesUntilEOF(t *testing.T) {
	in := NewInput(fixedSnapshot(&app.Snapshot{}))
	out := make(chan app.Command, 8)

	err := in.Run(context.Background(), strings.NewReader("j\x1b[Bs"), out)
	require.NoError(t, err)
	close(out)

	var got []app.Command
	for c := range out {
		got = append(got, c)
	}
	assert.Equal(t, []app.Command{app.Scroll(1), app.Scroll(1), app.ToggleSort()}, got)
}

func TestInput_RunStopsOnCancel(t *testing.T) {
	in := NewInput(fixedSnapshot(&app.Snapshot{}))
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx, pr, make(chan app.Command)) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestWatchSize_SendsOnChange(t *testing.T) {
	heights := []int{40, 40, 30}
	calls := 0
	size := func() (int, int, error) {
		h := heights[min(calls, len(heights)-1)]
		calls++
		return 120, h, nil
	}

	out := make(chan app.Command, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go WatchSize(ctx, size, time.Millisecond, out) //nolint:errcheck

	assert.Equal(t, app.Resize(37), <-out)
	assert.Equal(t, app.Resize(27), <-out)
}

func TestViewportRows(t *testing.T) {
	assert.Equal(t, 21, ViewportRows(24))
	assert.Equal(t, 1, ViewportRows(2))
}
