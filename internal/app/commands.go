package app

// CommandKind discriminates Command.
type CommandKind int

const (
	CmdScroll CommandKind = iota
	CmdPageScroll
	CmdJumpFirst
	CmdJumpLast
	CmdToggleSort
	CmdClear
	CmdReconnect
	CmdShowDetails
	CmdHideDetails
	CmdResize
	CmdSetFilter
	CmdClearFilter
	CmdAskQuit
	CmdCancelQuit
	CmdQuit
)

var commandNames = map[CommandKind]string{
	CmdScroll:      "scroll",
	CmdPageScroll:  "page_scroll",
	CmdJumpFirst:   "jump_first",
	CmdJumpLast:    "jump_last",
	CmdToggleSort:  "toggle_sort",
	CmdClear:       "clear",
	CmdReconnect:   "reconnect",
	CmdShowDetails: "show_details",
	CmdHideDetails: "hide_details",
	CmdResize:      "resize",
	CmdSetFilter:   "set_filter",
	CmdClearFilter: "clear_filter",
	CmdAskQuit:     "ask_quit",
	CmdCancelQuit:  "cancel_quit",
	CmdQuit:        "quit",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command is a user intent sent from the input task to the state owner.
type Command struct {
	Kind  CommandKind
	Delta int    // rows for Scroll, pages for PageScroll
	Rows  int    // viewport height for Resize
	Query string // filter text for SetFilter
}

func Scroll(delta int) Command     { return Command{Kind: CmdScroll, Delta: delta} }
func PageScroll(delta int) Command { return Command{Kind: CmdPageScroll, Delta: delta} }
func Resize(rows int) Command      { return Command{Kind: CmdResize, Rows: rows} }
func SetFilter(q string) Command   { return Command{Kind: CmdSetFilter, Query: q} }

func JumpFirst() Command   { return Command{Kind: CmdJumpFirst} }
func JumpLast() Command    { return Command{Kind: CmdJumpLast} }
func ToggleSort() Command  { return Command{Kind: CmdToggleSort} }
func Clear() Command       { return Command{Kind: CmdClear} }
func Reconnect() Command   { return Command{Kind: CmdReconnect} }
func ShowDetails() Command { return Command{Kind: CmdShowDetails} }
func HideDetails() Command { return Command{Kind: CmdHideDetails} }
func ClearFilter() Command { return Command{Kind: CmdClearFilter} }
func AskQuit() Command     { return Command{Kind: CmdAskQuit} }
func CancelQuit() Command  { return Command{Kind: CmdCancelQuit} }
func Quit() Command        { return Command{Kind: CmdQuit} }
