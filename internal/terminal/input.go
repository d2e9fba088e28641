package terminal

// KeyKind is a decoded input action.
type KeyKind int

const (
	KeyNone KeyKind = iota
	KeyNext
	KeyPrev
	KeyUp
	KeyDown
	KeySelect
	KeyDigit
	KeyClear
	KeySubmit
	KeyFocusLost
	KeyFocusGained
	KeyInterrupt
	KeySuspend
)

// Key is one decoded keypress. Digit is set for KeyDigit (1-9).
type Key struct {
	Kind  KeyKind
	Digit int
}

const (
	esc   = 0x1b
	ctrlC = 0x03
	ctrlD = 0x04
	ctrlZ = 0x1a
)

// Decoder turns raw terminal bytes into keys. Escape sequences may be split
// across reads, so an incomplete tail is kept until the next Feed.
type Decoder struct {
	pending []byte
}

// Feed decodes p and returns the complete keys found so far.
func (d *Decoder) Feed(p []byte) []Key {
	buf := append(d.pending, p...)
	d.pending = nil

	var keys []Key
	for i := 0; i < len(buf); {
		b := buf[i]
		if b != esc {
			if k := plainKey(b); k.Kind != KeyNone {
				keys = append(keys, k)
			}
			i++
			continue
		}

		k, n, complete := escapeKey(buf[i:])
		if !complete {
			d.pending = append([]byte(nil), buf[i:]...)
			break
		}
		if k.Kind != KeyNone {
			keys = append(keys, k)
		}
		i += n
	}
	return keys
}

func plainKey(b byte) Key {
	switch b {
	case ctrlC, ctrlD:
		return Key{Kind: KeyInterrupt}
	case ctrlZ:
		return Key{Kind: KeySuspend}
	case '\r', '\n', ' ':
		return Key{Kind: KeySelect}
	case 'n', 'l', '\t':
		return Key{Kind: KeyNext}
	case 'p', 'h':
		return Key{Kind: KeyPrev}
	case 'j':
		return Key{Kind: KeyDown}
	case 'k':
		return Key{Kind: KeyUp}
	case 'c', 0x7f, 0x08:
		return Key{Kind: KeyClear}
	case 's', 'S':
		return Key{Kind: KeySubmit}
	}
	if b >= '1' && b <= '9' {
		return Key{Kind: KeyDigit, Digit: int(b - '0')}
	}
	return Key{}
}

// escapeKey decodes the sequence at the start of buf, which begins with ESC.
// It reports how many bytes were consumed and whether the sequence is
// complete. Unknown sequences are consumed and yield KeyNone.
func escapeKey(buf []byte) (Key, int, bool) {
	if len(buf) < 2 {
		return Key{}, 0, false
	}
	switch buf[1] {
	case '[':
		// CSI: parameter bytes then one final byte in 0x40-0x7e.
		for j := 2; j < len(buf); j++ {
			c := buf[j]
			if c >= 0x40 && c <= 0x7e {
				return csiKey(c), j + 1, true
			}
		}
		return Key{}, 0, false
	case 'O':
		// SS3 arrows sent in application cursor mode.
		if len(buf) < 3 {
			return Key{}, 0, false
		}
		return csiKey(buf[2]), 3, true
	}
	// A lone ESC followed by an ordinary key.
	return Key{}, 1, true
}

func csiKey(final byte) Key {
	switch final {
	case 'A':
		return Key{Kind: KeyUp}
	case 'B':
		return Key{Kind: KeyDown}
	case 'C':
		return Key{Kind: KeyNext}
	case 'D':
		return Key{Kind: KeyPrev}
	case 'I':
		return Key{Kind: KeyFocusGained}
	case 'O':
		return Key{Kind: KeyFocusLost}
	}
	return Key{}
}
