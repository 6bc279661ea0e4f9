package terminal

import "unicode/utf8"

// KeyCode identifies a parsed key.
type KeyCode int

const (
	KeyRune KeyCode = iota
	KeyUp
	KeyDown
	KeyPageUp
	KeyPageDown
	KeyHome
	KeyEnd
	KeyEnter
	KeyEsc
	KeyBackspace
	KeyCtrlC
	KeyUnknown
)

// Key is one keystroke. Rune is set for KeyRune.
type Key struct {
	Code KeyCode
	Rune rune
}

// escape sequences emitted by common terminals in raw mode
var sequences = map[string]KeyCode{
	"[A":  KeyUp,
	"[B":  KeyDown,
	"OA":  KeyUp,
	"OB":  KeyDown,
	"[5~": KeyPageUp,
	"[6~": KeyPageDown,
	"[H":  KeyHome,
	"[F":  KeyEnd,
	"OH":  KeyHome,
	"OF":  KeyEnd,
	"[1~": KeyHome,
	"[4~": KeyEnd,
	"[7~": KeyHome,
	"[8~": KeyEnd,
}

// ParseKeys splits raw terminal input into keys. A lone ESC at the end of
// the buffer is the Escape key; unrecognized sequences become KeyUnknown.
func ParseKeys(b []byte) []Key {
	var keys []Key
	for len(b) > 0 {
		switch c := b[0]; {
		case c == 0x1b:
			if len(b) == 1 {
				keys = append(keys, Key{Code: KeyEsc})
				return keys
			}
			code, n := parseSequence(b[1:])
			keys = append(keys, Key{Code: code})
			b = b[1+n:]
			continue
		case c == '\r' || c == '\n':
			keys = append(keys, Key{Code: KeyEnter})
		case c == 0x7f || c == 0x08:
			keys = append(keys, Key{Code: KeyBackspace})
		case c == 0x03:
			keys = append(keys, Key{Code: KeyCtrlC})
		case c < 0x20:
			keys = append(keys, Key{Code: KeyUnknown})
		default:
			r, n := utf8.DecodeRune(b)
			keys = append(keys, Key{Code: KeyRune, Rune: r})
			b = b[n:]
			continue
		}
		b = b[1:]
	}
	return keys
}

// parseSequence matches the bytes after ESC and returns the key and bytes consumed.
func parseSequence(b []byte) (KeyCode, int) {
	if b[0] != '[' && b[0] != 'O' {
		// ESC followed by a plain key: treat as Escape and leave the key.
		return KeyEsc, 0
	}
	// CSI sequences end with a byte in 0x40..0x7e.
	for i := 1; i < len(b); i++ {
		if b[i] >= 0x40 && b[i] <= 0x7e {
			if code, ok := sequences[string(b[:i+1])]; ok {
				return code, i + 1
			}
			return KeyUnknown, i + 1
		}
	}
	return KeyUnknown, len(b)
}
