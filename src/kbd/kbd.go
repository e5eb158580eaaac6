// Package kbd translates raw keyboard scancodes into the foreground
// terminal's line buffer. It is the Go side of the external keyboard
// scanner spec.md's §1 lists as a driver consumed by contract: this
// package owns scancode-to-character translation and modifier state,
// but the actual IRQ and port 0x60 reads are someone else's problem.
package kbd

import (
	"sync"

	"n391kernel/src/term"
)

// KeyCount is the number of scancodes the translation tables cover.
const KeyCount = 59

// Scancodes handled specially, outside the translation tables.
const (
	LShiftDown byte = 0x2A
	LShiftUp   byte = 0xAA
	RShiftDown byte = 0x36
	RShiftUp   byte = 0xB6
	CapsLock   byte = 0x3A
	Backspace  byte = 0x0E
	Enter      byte = 0x1C
	CtrlDown   byte = 0x1D
	CtrlUp     byte = 0x9D
	AltDown    byte = 0x38
	AltUp      byte = 0xB8
	F1         byte = 0x3B
	F2         byte = 0x3C
	F3         byte = 0x3D
)

// scancodeMap[mode][scancode] is the translated character, or 0 for a
// scancode with no printable mapping. mode is (caps<<1 | shift): 0 is
// no-shift/no-caps, 1 is shift, 2 is caps, 3 is both.
var scancodeMap = [4][KeyCount]byte{
	{0, 0, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', 0, 0,
		'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', 0, 0, 'a', 's',
		'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`', 0, '\\', 'z', 'x', 'c', 'v',
		'b', 'n', 'm', ',', '.', '/', 0, '*', 0, ' ', 0},
	{0, 0, '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '_', '+', 0, 0,
		'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I', 'O', 'P', '{', '}', 0, 0, 'A', 'S',
		'D', 'F', 'G', 'H', 'J', 'K', 'L', ':', '"', '~', 0, '|', 'Z', 'X', 'C', 'V',
		'B', 'N', 'M', '<', '>', '?', 0, '*', 0, ' ', 0},
	{0, 0, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', 0, 0,
		'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I', 'O', 'P', '[', ']', 0, 0, 'A', 'S',
		'D', 'F', 'G', 'H', 'J', 'K', 'L', ';', '\'', '`', 0, '\\', 'Z', 'X', 'C', 'V',
		'B', 'N', 'M', ',', '.', '/', 0, '*', 0, ' ', 0},
	{0, 0, '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '_', '+', 0, 0,
		'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '{', '}', 0, 0, 'a', 's',
		'd', 'f', 'g', 'h', 'j', 'k', 'l', ':', '"', '~', 0, '\\', 'z', 'x', 'c', 'v',
		'b', 'n', 'm', '<', '>', '?', 0, '*', 0, ' ', 0},
}

// Keyboard holds modifier state and routes translated keys into whichever
// terminal is currently foreground.
type Keyboard struct {
	mu sync.Mutex

	shift, caps, ctrl, alt bool

	terms      [3]*term.Terminal
	foreground int

	// OnHotkey is called when alt+F1/F2/F3 is pressed, after the
	// foreground terminal has been retargeted. It is the kernel's
	// launch_term: spawning a shell the first time a terminal becomes
	// foreground is a policy decision this package doesn't make.
	OnHotkey func(termID int)
}

// New returns a Keyboard routing into terms, with terms[0] foreground.
func New(terms [3]*term.Terminal) *Keyboard {
	return &Keyboard{terms: terms}
}

// Foreground returns the index of the terminal currently receiving
// keystrokes.
func (k *Keyboard) Foreground() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.foreground
}

// SetForeground retargets keystroke delivery atomically, so a scancode
// arriving mid-switch is never appended to the wrong terminal's buffer.
func (k *Keyboard) SetForeground(termID int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.foreground = termID
}

func (k *Keyboard) foregroundTerm() *term.Terminal {
	k.mu.Lock()
	t := k.terms[k.foreground]
	k.mu.Unlock()
	return t
}

// HandleScancode processes one raw scancode: modifier tracking,
// ctrl+L clear, alt+F1/F2/F3 terminal switch, backspace/enter/printable
// routing into the foreground terminal.
func (k *Keyboard) HandleScancode(c byte) {
	switch c {
	case LShiftDown, RShiftDown:
		k.setMod(&k.shift, true)
	case LShiftUp, RShiftUp:
		k.setMod(&k.shift, false)
	case CapsLock:
		k.mu.Lock()
		k.caps = !k.caps
		k.mu.Unlock()
	case CtrlDown:
		k.setMod(&k.ctrl, true)
	case CtrlUp:
		k.setMod(&k.ctrl, false)
	case AltDown:
		k.setMod(&k.alt, true)
	case AltUp:
		k.setMod(&k.alt, false)
	case Backspace:
		k.foregroundTerm().Backspace()
	case Enter:
		k.foregroundTerm().PushByte('\n')
	case F1:
		k.hotkey(0)
	case F2:
		k.hotkey(1)
	case F3:
		k.hotkey(2)
	default:
		k.translate(c)
	}
}

func (k *Keyboard) setMod(mod *bool, v bool) {
	k.mu.Lock()
	*mod = v
	k.mu.Unlock()
}

func (k *Keyboard) hotkey(termID int) {
	k.mu.Lock()
	alt := k.alt
	k.mu.Unlock()
	if !alt {
		return
	}
	k.SetForeground(termID)
	if k.OnHotkey != nil {
		k.OnHotkey(termID)
	}
}

func (k *Keyboard) translate(scancode byte) {
	if int(scancode) >= KeyCount {
		return
	}
	k.mu.Lock()
	mode := 0
	if k.caps {
		mode |= 2
	}
	if k.shift {
		mode |= 1
	}
	ctrl := k.ctrl
	k.mu.Unlock()

	key := scancodeMap[mode][scancode]
	if key == 0 {
		return
	}
	if ctrl {
		switch key {
		case 'l':
			k.foregroundTerm().ClearScreen()
		case 'c':
		}
		return
	}
	k.foregroundTerm().PushByte(key)
}
