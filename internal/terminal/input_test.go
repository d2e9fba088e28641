package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecoder_Feed(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Key
	}{
		{"digits", "13", []Key{{Kind: KeyDigit, Digit: 1}, {Kind: KeyDigit, Digit: 3}}},
		{"zero is ignored", "0", nil},
		{"navigation", "npjk", []Key{{Kind: KeyNext}, {Kind: KeyPrev}, {Kind: KeyDown}, {Kind: KeyUp}}},
		{"arrows", "\x1b[A\x1b[B\x1b[C\x1b[D", []Key{{Kind: KeyUp}, {Kind: KeyDown}, {Kind: KeyNext}, {Kind: KeyPrev}}},
		{"application arrows", "\x1bOA", []Key{{Kind: KeyUp}}},
		{"modified arrow", "\x1b[1;5C", []Key{{Kind: KeyNext}}},
		{"focus out", "\x1b[O", []Key{{Kind: KeyFocusLost}}},
		{"focus in", "\x1b[I", []Key{{Kind: KeyFocusGained}}},
		{"control keys", "\x03\x04\x1a", []Key{{Kind: KeyInterrupt}, {Kind: KeyInterrupt}, {Kind: KeySuspend}}},
		{"select and submit", "\r s", []Key{{Kind: KeySelect}, {Kind: KeySelect}, {Kind: KeySubmit}}},
		{"clear", "c\x7f", []Key{{Kind: KeyClear}, {Kind: KeyClear}}},
		{"unknown csi is dropped", "\x1b[5~n", []Key{{Kind: KeyNext}}},
		{"lone escape", "\x1bn", []Key{{Kind: KeyNext}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Decoder
			assert.Equal(t, tt.want, d.Feed([]byte(tt.in)))
		})
	}
}

func TestDecoder_SplitSequence(t *testing.T) {
	var d Decoder
	assert.Empty(t, d.Feed([]byte("\x1b")))
	assert.Empty(t, d.Feed([]byte("[")))
	assert.Equal(t, []Key{{Kind: KeyFocusLost}, {Kind: KeyDigit, Digit: 2}}, d.Feed([]byte("O2")))
	assert.Empty(t, d.pending)
}
