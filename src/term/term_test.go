package term

import (
	"sync"
	"testing"
	"time"
)

func TestPushByteAndReadLine(t *testing.T) {
	term := New(0, Attr1)
	for _, b := range []byte("ls\n") {
		term.PushByte(b)
	}
	buf := make([]byte, 16)
	n, err := term.ReadLine(buf)
	if err != 0 || string(buf[:n]) != "ls\n" {
		t.Fatalf("got %q err=%d", buf[:n], err)
	}
}

func TestReadLineBlocksUntilEnter(t *testing.T) {
	term := New(0, Attr1)
	done := make(chan string)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 16)
		n, _ := term.ReadLine(buf)
		done <- string(buf[:n])
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("ReadLine returned before enter was pushed")
	default:
	}

	for _, b := range []byte("hi\n") {
		term.PushByte(b)
	}
	select {
	case got := <-done:
		if got != "hi\n" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadLine never returned")
	}
	wg.Wait()
}

func TestBackspace(t *testing.T) {
	term := New(0, Attr1)
	for _, b := range []byte("abc") {
		term.PushByte(b)
	}
	term.Backspace()
	term.PushByte('\n')
	buf := make([]byte, 16)
	n, _ := term.ReadLine(buf)
	if string(buf[:n]) != "ab\n" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestWriteAdvancesCursorAndWraps(t *testing.T) {
	term := New(0, Attr1)
	n, err := term.Write([]byte("hello"))
	if err != 0 || n != 5 {
		t.Fatalf("n=%d err=%d", n, err)
	}
	if term.CursorX != 5 || term.CursorY != 0 {
		t.Fatalf("cursor at (%d,%d), want (5,0)", term.CursorX, term.CursorY)
	}
	if term.Shadow[0].Char != 'h' || term.Shadow[0].Attr != Attr1 {
		t.Fatalf("cell 0 = %+v", term.Shadow[0])
	}

	long := make([]byte, Columns+3)
	for i := range long {
		long[i] = 'x'
	}
	term2 := New(0, Attr1)
	term2.Write(long)
	if term2.CursorY != 1 || term2.CursorX != 3 {
		t.Fatalf("wrap cursor at (%d,%d), want (3,1)", term2.CursorX, term2.CursorY)
	}
}

func TestFreezeBlocksInputAndWakesReaders(t *testing.T) {
	term := New(0, Attr1)
	done := make(chan int)
	go func() {
		buf := make([]byte, 16)
		_, err := term.ReadLine(buf)
		done <- int(err)
	}()

	time.Sleep(10 * time.Millisecond)
	term.Freeze(Attr2)

	select {
	case err := <-done:
		if err == 0 {
			t.Fatal("a frozen terminal's blocked ReadLine must return an error, not a line")
		}
	case <-time.After(time.Second):
		t.Fatal("Freeze never woke the blocked reader")
	}

	term.PushByte('x')
	if term.lineLen != 0 {
		t.Fatal("a frozen terminal must not accept further keystrokes")
	}
	if term.Shadow[0].Attr != Attr2 {
		t.Fatalf("shadow page not painted in the freeze attribute: %+v", term.Shadow[0])
	}
}

func TestClearScreen(t *testing.T) {
	term := New(0, Attr1)
	term.Write([]byte("x"))
	term.ClearScreen()
	if term.CursorX != 0 || term.CursorY != 0 {
		t.Fatal("cursor should reset")
	}
	if term.Shadow[0].Char != ' ' {
		t.Fatal("shadow page should be blank")
	}
}
