package kbd

import (
	"testing"

	"n391kernel/src/term"
)

func newTerms() [3]*term.Terminal {
	return [3]*term.Terminal{
		term.New(0, term.Attr1),
		term.New(1, term.Attr2),
		term.New(2, term.Attr3),
	}
}

func readLine(t *testing.T, term_ *term.Terminal) string {
	t.Helper()
	buf := make([]byte, 16)
	n, err := term_.ReadLine(buf)
	if err != 0 {
		t.Fatalf("ReadLine error %d", err)
	}
	return string(buf[:n])
}

func TestLowercaseTyping(t *testing.T) {
	terms := newTerms()
	k := New(terms)
	for _, sc := range []byte{0x1E, 0x1C} { // 'a', Enter
		k.HandleScancode(sc)
	}
	if got := readLine(t, terms[0]); got != "a\n" {
		t.Fatalf("got %q", got)
	}
}

func TestShiftUppercases(t *testing.T) {
	terms := newTerms()
	k := New(terms)
	k.HandleScancode(LShiftDown)
	k.HandleScancode(0x1E) // 'a' -> 'A' under shift
	k.HandleScancode(LShiftUp)
	k.HandleScancode(Enter)
	if got := readLine(t, terms[0]); got != "A\n" {
		t.Fatalf("got %q", got)
	}
}

func TestCapsLockUppercases(t *testing.T) {
	terms := newTerms()
	k := New(terms)
	k.HandleScancode(CapsLock)
	k.HandleScancode(0x1E)
	k.HandleScancode(Enter)
	if got := readLine(t, terms[0]); got != "A\n" {
		t.Fatalf("got %q", got)
	}
	k.HandleScancode(CapsLock)
}

func TestBackspaceRemovesLastByte(t *testing.T) {
	terms := newTerms()
	k := New(terms)
	k.HandleScancode(0x1E) // a
	k.HandleScancode(0x30) // b
	k.HandleScancode(Backspace)
	k.HandleScancode(Enter)
	if got := readLine(t, terms[0]); got != "a\n" {
		t.Fatalf("got %q", got)
	}
}

func TestAltF2SwitchesForegroundAndFiresHotkey(t *testing.T) {
	terms := newTerms()
	k := New(terms)
	var fired int = -1
	k.OnHotkey = func(id int) { fired = id }

	k.HandleScancode(AltDown)
	k.HandleScancode(F2)
	k.HandleScancode(AltUp)

	if k.Foreground() != 1 {
		t.Fatalf("foreground = %d, want 1", k.Foreground())
	}
	if fired != 1 {
		t.Fatalf("OnHotkey fired with %d, want 1", fired)
	}

	// typing now lands in terminal 1, not terminal 0
	k.HandleScancode(0x1E)
	k.HandleScancode(Enter)
	if got := readLine(t, terms[1]); got != "a\n" {
		t.Fatalf("got %q", got)
	}
}

func TestF2WithoutAltIsIgnored(t *testing.T) {
	terms := newTerms()
	k := New(terms)
	k.HandleScancode(F2)
	if k.Foreground() != 0 {
		t.Fatalf("foreground changed without alt held: %d", k.Foreground())
	}
}

func TestCtrlLClearsScreen(t *testing.T) {
	terms := newTerms()
	k := New(terms)
	k.HandleScancode(0x1E)
	terms[0].Write([]byte("x"))
	k.HandleScancode(CtrlDown)
	k.HandleScancode(0x26) // 'l'
	k.HandleScancode(CtrlUp)
	if terms[0].CursorX != 0 || terms[0].CursorY != 0 {
		t.Fatal("ctrl+L should reset cursor")
	}
}
