package terminal

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"evm-tx-monitor/internal/app"
	"evm-tx-monitor/internal/domain"
)

const (
	escReset      = "\x1b[0m"
	escBold       = "\x1b[1m"
	escDim        = "\x1b[2m"
	escReverse    = "\x1b[7m"
	escHome       = "\x1b[H"
	escClearLine  = "\x1b[K"
	escClearBelow = "\x1b[J"

	fgRed     = "\x1b[31m"
	fgGreen   = "\x1b[32m"
	fgYellow  = "\x1b[33m"
	fgBlue    = "\x1b[34m"
	fgMagenta = "\x1b[35m"
	fgCyan    = "\x1b[36m"
	fgGray    = "\x1b[90m"
	fgBrBlue  = "\x1b[94m"
	fgBrMag   = "\x1b[95m"
	fgBrCyan  = "\x1b[96m"
)

var categoryColors = map[domain.Category]string{
	domain.CategoryTransfer:   fgGreen,
	domain.CategorySwap:       fgCyan,
	domain.CategoryLiquidity:  fgBlue,
	domain.CategoryApproval:   fgYellow,
	domain.CategoryMint:       fgMagenta,
	domain.CategoryWithdraw:   fgRed,
	domain.CategoryBridge:     fgBrBlue,
	domain.CategoryStaking:    fgBrMag,
	domain.CategoryGovernance: fgBrCyan,
}

var phaseColors = map[domain.ConnectionPhase]string{
	domain.PhaseConnected:    fgGreen,
	domain.PhaseConnecting:   fgYellow,
	domain.PhaseBackoff:      fgYellow,
	domain.PhaseFailed:       fgRed,
	domain.PhaseDisconnected: fgRed,
}

// column widths of the transaction table
const (
	colHash  = 18
	colAddr  = 14
	colValue = 18
)

const helpLine = "up/down move  pgup/pgdn page  g/G first/last  s sort  / filter  enter details  c clear  r reconnect  q quit"

// Renderer paints snapshots as full ANSI frames.
// Each frame is written with a single Write.
type Renderer struct {
	w     io.Writer
	color bool
	buf   bytes.Buffer
}

// NewRenderer creates a Renderer. With color false no SGR codes are emitted.
func NewRenderer(w io.Writer, color bool) *Renderer {
	return &Renderer{w: w, color: color}
}

// Render draws snap into a width x height screen.
func (r *Renderer) Render(snap *app.Snapshot, width, height int, editing bool) error {
	if snap == nil || width < 1 || height < 1 {
		return nil
	}
	r.buf.Reset()
	r.buf.WriteString(escHome)

	body := ViewportRows(height)
	r.line(r.header(snap), width, headerStyle(snap), true)

	if snap.Details != nil {
		r.line(" TRANSACTION DETAILS", width, escBold, true)
		lines := detailLines(snap)
		for i := 0; i < body; i++ {
			text := ""
			if i < len(lines) {
				text = lines[i]
			}
			r.line(text, width, "", true)
		}
	} else {
		r.line(tableHeader(), width, escBold, true)
		for i := 0; i < body; i++ {
			if i < len(snap.Window) {
				tx := &snap.Window[i]
				style := rowStyle(tx)
				if snap.Offset+i == snap.SelectedIndex {
					style += escReverse
				}
				r.line(row(tx), width, style, true)
				continue
			}
			text := ""
			if i == 0 && len(snap.Window) == 0 {
				text = emptyMessage(snap)
			}
			r.line(text, width, escDim, true)
		}
	}

	r.line(footer(snap, editing), width, escDim, false)
	r.buf.WriteString(escClearBelow)

	_, err := r.w.Write(r.buf.Bytes())
	return err
}

// line writes text clipped to width. Raw mode needs an explicit carriage return.
func (r *Renderer) line(text string, width int, style string, newline bool) {
	if r.color && style != "" {
		r.buf.WriteString(style)
	}
	r.buf.WriteString(fit(text, width))
	if r.color && style != "" {
		r.buf.WriteString(escReset)
	}
	r.buf.WriteString(escClearLine)
	if newline {
		r.buf.WriteString("\r\n")
	}
}

func (r *Renderer) header(snap *app.Snapshot) string {
	order := "oldest first"
	if snap.SortOrder == domain.SortNewestFirst {
		order = "newest first"
	}
	status := snap.Connection.String()
	if snap.Connection.LastError != "" && snap.Connection.Phase != domain.PhaseConnected {
		status += ": " + snap.Connection.LastError
	}
	return fmt.Sprintf(" evm-tx-monitor | %s | %d/%d stored | %d received | %d dropped | %.1f tx/s | %s",
		status, snap.TotalCount, snap.Capacity, snap.Received, snap.Dropped, snap.Rate, order)
}

func headerStyle(snap *app.Snapshot) string {
	return escBold + phaseColors[snap.Connection.Phase]
}

func tableHeader() string {
	return " " + fit("HASH", colHash) + " " + fit("FROM", colAddr) + " " + fit("TO", colAddr) + " " +
		padLeft("VALUE (ETH)", colValue) + "  FUNCTION"
}

func row(tx *domain.DecodedTransaction) string {
	to := "(create)"
	if tx.To != nil {
		to = shortAddress(*tx.To)
	}
	from := "-"
	if tx.From != nil {
		from = shortAddress(*tx.From)
	}
	label := tx.Function.Name
	if !tx.Function.Known() {
		label += " ?"
	}
	return " " + fit(shortHash(tx.Hash), colHash) + " " + fit(from, colAddr) + " " + fit(to, colAddr) + " " +
		padLeft(tx.ValueFormatted, colValue) + "  " + label
}

func rowStyle(tx *domain.DecodedTransaction) string {
	if !tx.Function.Known() {
		return fgGray
	}
	return categoryColors[tx.Function.Category]
}

func emptyMessage(snap *app.Snapshot) string {
	if snap.Filter != "" && snap.TotalCount > 0 {
		return " no transactions match the filter"
	}
	return " waiting for transactions..."
}

func footer(snap *app.Snapshot, editing bool) string {
	switch {
	case snap.ConfirmQuit:
		return " quit? (y/n)"
	case editing:
		return " /" + snap.Filter + "_"
	case snap.Details != nil:
		return " enter/esc back  q quit"
	case snap.Filter != "":
		return fmt.Sprintf(" filter: %s (%d of %d)  esc clear  / edit", snap.Filter, snap.Matched, snap.TotalCount)
	default:
		return " " + helpLine
	}
}

func detailLines(snap *app.Snapshot) []string {
	tx := snap.Details
	field := func(name, value string) string {
		return fmt.Sprintf(" %-22s %s", name, value)
	}

	status := "pending"
	if tx.BlockNumber != nil {
		status = fmt.Sprintf("included in block %d", *tx.BlockNumber)
	}
	from, to := "-", "contract creation"
	if tx.From != nil {
		from = tx.From.Hex()
	}
	if tx.To != nil {
		to = tx.To.Hex()
	}
	function := tx.Function.Name
	if tx.Function.Selector != "" {
		function += " (" + tx.Function.Selector + ")"
	}
	if !tx.Function.Known() {
		function += " unknown selector"
	}

	lines := []string{
		field("Hash", tx.Hash.Hex()),
		field("Status", status),
		field("From", from),
		field("To", to),
		field("Value", tx.ValueFormatted+" ETH"),
		field("Function", function),
		field("Category", string(tx.Function.Category)),
		field("Gas limit", fmt.Sprintf("%d", tx.Gas)),
		field("Gas price", gwei(tx.GasPrice)),
		field("Max fee", gwei(tx.MaxFeePerGas)),
		field("Max priority fee", gwei(tx.MaxPriorityFeePerGas)),
		field("Nonce", fmt.Sprintf("%d", tx.Nonce)),
		field("Type", fmt.Sprintf("%d", tx.Type)),
		field("Input", inputPreview(tx.Input)),
		field("Arrived", tx.ArrivedAt.Format("15:04:05.000")),
		"",
	}

	switch {
	case snap.Receipt != nil:
		rc := snap.Receipt
		result := "unknown"
		if rc.Status != nil {
			result = "failed"
			if *rc.Status {
				result = "success"
			}
		}
		lines = append(lines, field("Receipt", result))
		if rc.BlockNumber != nil {
			lines = append(lines, field("Block", fmt.Sprintf("%d", *rc.BlockNumber)))
		}
		if rc.GasUsed != nil {
			lines = append(lines, field("Gas used", fmt.Sprintf("%d", *rc.GasUsed)))
		}
		if rc.EffectiveGasPrice != "" {
			lines = append(lines, field("Effective gas price", weiToGwei(rc.EffectiveGasPrice)))
		}
	case snap.ReceiptErr != "":
		lines = append(lines, field("Receipt", "unavailable: "+snap.ReceiptErr))
	default:
		lines = append(lines, field("Receipt", "loading..."))
	}
	return lines
}

func gwei(v *uint256.Int) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromBigInt(v.ToBig(), -9).String() + " gwei"
}

func weiToGwei(wei string) string {
	d, err := decimal.NewFromString(wei)
	if err != nil {
		return wei + " wei"
	}
	return d.Shift(-9).String() + " gwei"
}

const maxInputPreview = 36

func inputPreview(input []byte) string {
	if len(input) == 0 {
		return "(empty)"
	}
	if len(input) <= maxInputPreview {
		return hexutil.Encode(input)
	}
	return fmt.Sprintf("%s... (%d bytes)", hexutil.Encode(input[:maxInputPreview]), len(input))
}

func shortHash(h common.Hash) string {
	s := h.Hex()
	return s[:10] + ".." + s[len(s)-4:]
}

func shortAddress(a common.Address) string {
	s := a.Hex()
	return s[:6] + ".." + s[len(s)-4:]
}

// fit clips or pads s to exactly width runes.
func fit(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n == width {
		return s
	}
	if n < width {
		return s + strings.Repeat(" ", width-n)
	}
	runes := []rune(s)
	return string(runes[:width])
}

func padLeft(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return fit(s, width)
	}
	return strings.Repeat(" ", width-n) + s
}
