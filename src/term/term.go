// Package term implements the three statically-allocated terminal
// records: cursor state, keyboard line buffer, enter flag, and a shadow
// video page each terminal can be drawn to while it isn't foreground.
package term

import (
	"sync"
	"unicode/utf8"
	"unsafe"

	"golang.org/x/text/width"

	"n391kernel/src/defs"
	"n391kernel/src/mem"
)

// Columns and Rows are the fixed text-mode screen dimensions.
const (
	Columns = 80
	Rows    = 25
)

// LineBufSize is the keyboard line buffer's capacity, one byte short of
// 128 so a trailing NUL never has to displace a typed character.
const LineBufSize = 127

// Attr is a video-cell color attribute byte.
type Attr byte

// Per-terminal attributes, assigned by terminal id.
const (
	Attr1 Attr = 0x0F // white on black
	Attr2 Attr = 0x04 // red on black
	Attr3 Attr = 0x02 // green on black
)

// Cell is one {char, attribute} video cell.
type Cell struct {
	Char byte
	Attr Attr
}

// Terminal is one of the three independent text terminals.
type Terminal struct {
	mu sync.Mutex

	ID                  int
	activeProcessNumber int // -1 when no process is running
	running             bool
	frozen              bool // set by blue.Handler.Trap; recovery is external reset only
	CursorX, CursorY    int
	Attr                Attr

	lineBuf   [LineBufSize]byte
	lineLen   int
	enterFlag bool
	enterCond *sync.Cond

	Shadow [Rows * Columns]Cell
}

// New returns an idle terminal with id and attr, cursor at the origin,
// not running, and its shadow page cleared to blank cells in attr.
func New(id int, attr Attr) *Terminal {
	t := &Terminal{
		ID:                  id,
		activeProcessNumber: -1,
		Attr:                attr,
	}
	t.enterCond = sync.NewCond(&t.mu)
	for i := range t.Shadow {
		t.Shadow[i] = Cell{Char: ' ', Attr: attr}
	}
	return t
}

// PushByte appends a scancode-translated byte to the line buffer,
// dropping it silently once the buffer is full. A newline sets the
// enter flag and wakes any blocked ReadLine.
func (t *Terminal) PushByte(b byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return
	}
	if b == '\n' {
		if t.lineLen < LineBufSize {
			t.lineBuf[t.lineLen] = '\n'
			t.lineLen++
		}
		t.enterFlag = true
		t.enterCond.Broadcast()
		return
	}
	if t.lineLen < LineBufSize {
		t.lineBuf[t.lineLen] = b
		t.lineLen++
	}
}

// Backspace removes the last buffered byte, if any.
func (t *Terminal) Backspace() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lineLen > 0 {
		t.lineLen--
	}
}

// ClearLine empties the line buffer without affecting the enter flag.
func (t *Terminal) ClearLine() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lineLen = 0
}

// ReadLine blocks until the enter flag is raised, then copies the
// buffered line into buf (truncated to len(buf)), clears the buffer and
// the enter flag, and returns the number of bytes copied. It implements
// proc.TerminalIO structurally.
func (t *Terminal) ReadLine(buf []byte) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.enterFlag && !t.frozen {
		t.enterCond.Wait()
	}
	if t.frozen {
		return -1, defs.EFAULT
	}
	n := copy(buf, t.lineBuf[:t.lineLen])
	t.lineLen = 0
	t.enterFlag = false
	return n, 0
}

// Write renders buf into the shadow page starting at the cursor,
// advancing the cursor by each rune's display width and wrapping lines;
// it scrolls the page up one row when the cursor runs past the last
// row. It implements proc.TerminalIO structurally.
func (t *Terminal) Write(buf []byte) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		buf = buf[size:]
		n += size
		if r == '\n' {
			t.CursorX = 0
			t.CursorY++
		} else {
			cols := runeCols(r)
			t.putCell(byte(r), cols)
		}
		if t.CursorY >= Rows {
			t.scroll()
		}
	}
	return n, 0
}

func runeCols(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func (t *Terminal) putCell(ch byte, cols int) {
	idx := t.CursorY*Columns + t.CursorX
	if idx >= 0 && idx < len(t.Shadow) {
		t.Shadow[idx] = Cell{Char: ch, Attr: t.Attr}
	}
	t.CursorX += cols
	if t.CursorX >= Columns {
		t.CursorX = 0
		t.CursorY++
	}
}

// scroll shifts every row up by one and blanks the last row, then pins
// the cursor to the last row.
func (t *Terminal) scroll() {
	copy(t.Shadow[:], t.Shadow[Columns:])
	for i := (Rows - 1) * Columns; i < Rows*Columns; i++ {
		t.Shadow[i] = Cell{Char: ' ', Attr: t.Attr}
	}
	t.CursorY = Rows - 1
}

// PhysAddr returns the "physical" address of this terminal's shadow
// page: its own backing memory, the same convention vm.PagingManager
// uses for its page tables, since nothing in this kernel has a real
// physical address distinct from where the Go value already lives.
func (t *Terminal) PhysAddr() mem.Pa_t {
	return mem.Pa_t(uintptr(unsafe.Pointer(&t.Shadow)))
}

// Freeze paints the shadow page entirely in attr and stops this
// terminal from accepting further keystrokes or line reads. It's
// blue.Handler's side of a trapped exception: recovery is only by
// external reset, so nothing in this package ever clears Frozen.
func (t *Terminal) Freeze(attr Attr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
	t.Attr = attr
	for i := range t.Shadow {
		t.Shadow[i] = Cell{Char: ' ', Attr: attr}
	}
	t.CursorX, t.CursorY = 0, 0
	t.enterCond.Broadcast()
}

// ClearScreen blanks the shadow page and resets the cursor, used by
// ctrl+L.
func (t *Terminal) ClearScreen() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.Shadow {
		t.Shadow[i] = Cell{Char: ' ', Attr: t.Attr}
	}
	t.CursorX, t.CursorY = 0, 0
}

// Running reports whether this terminal has a root process executing.
// sysc and sched both read this across goroutines, so it goes through
// the same mutex as every other piece of terminal state.
func (t *Terminal) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// SetRunning records whether this terminal has a root process executing.
func (t *Terminal) SetRunning(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = v
}

// ActiveProcessNumber returns the process slot currently owning this
// terminal's foreground, or -1 when none does.
func (t *Terminal) ActiveProcessNumber() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeProcessNumber
}

// SetActiveProcessNumber records the process slot currently owning this
// terminal's foreground.
func (t *Terminal) SetActiveProcessNumber(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeProcessNumber = n
}

// Frozen reports whether blue.Handler has trapped this terminal.
func (t *Terminal) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}
