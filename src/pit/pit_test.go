package pit

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewDefaultsToTwentyHz(t *testing.T) {
	tk, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tk.Stop()
	if tk.Hz() != DefaultHz {
		t.Fatalf("Hz = %d, want %d", tk.Hz(), DefaultHz)
	}
}

func TestRunFiresAtConfiguredRate(t *testing.T) {
	tk, err := New(100) // fast rate so the test doesn't have to wait long
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tk.Stop()

	var ticks int64
	tk.Run(func(ack func()) {
		ack()
		atomic.AddInt64(&ticks, 1)
	})

	time.Sleep(200 * time.Millisecond)
	got := atomic.LoadInt64(&ticks)
	if got < 5 {
		t.Fatalf("got %d ticks in 200ms at 100Hz, expected at least 5", got)
	}
}

func TestRunPassesNonNilAck(t *testing.T) {
	tk, err := New(100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tk.Stop()

	done := make(chan bool, 1)
	tk.Run(func(ack func()) {
		select {
		case done <- ack != nil:
		default:
		}
		if ack != nil {
			ack()
		}
	})

	select {
	case gotAck := <-done:
		if !gotAck {
			t.Fatal("onTick received a nil ack")
		}
	case <-time.After(time.Second):
		t.Fatal("onTick never fired")
	}
}

func TestStopHaltsFurtherTicks(t *testing.T) {
	tk, err := New(100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var ticks int64
	tk.Run(func(ack func()) {
		ack()
		atomic.AddInt64(&ticks, 1)
	})
	time.Sleep(50 * time.Millisecond)
	tk.Stop()

	after := atomic.LoadInt64(&ticks)
	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt64(&ticks) != after {
		t.Fatal("ticks continued to arrive after Stop")
	}
}
