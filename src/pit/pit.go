// Package pit simulates the programmable interval timer:
// original_source/scheduling.c's init_PIT programs channel 0 for mode 3
// at a 20Hz divisor and PIT_interrupt_and_schedule fires on every
// resulting IRQ 0. There's no real PIT hardware to program here, so
// Ticker drives the same rate off a Linux timerfd instead of a bare
// time.Sleep loop, matching the corpus's preference (see
// emu/timer/timer.go) for a dedicated OS timer primitive behind a
// start/stop goroutine.
package pit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultHz is the original's "20 second intervals" comment, which is
// the author's typo for 20Hz: PIT_SQUARE_WAVE_MODE_3 with a divisor
// computed from _20HZ is, in fact, 20 ticks per second.
const DefaultHz = 20

// Ticker fires onTick at a fixed rate until Stop is called.
type Ticker struct {
	fd   int
	hz   int
	log  *slog.Logger
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Ticker at hz (DefaultHz if hz <= 0), backed by a
// CLOCK_MONOTONIC timerfd so the tick source survives wall-clock
// adjustments the way real interrupt hardware would.
func New(hz int) (*Ticker, error) {
	if hz <= 0 {
		hz = DefaultHz
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		return nil, fmt.Errorf("pit: timerfd_create: %w", err)
	}
	interval := unix.NsecToTimespec((time.Second / time.Duration(hz)).Nanoseconds())
	spec := &unix.ItimerSpec{Interval: interval, Value: interval}
	if err := unix.TimerfdSettime(fd, 0, spec, nil); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("pit: timerfd_settime: %w", err)
	}
	return &Ticker{fd: fd, hz: hz, log: slog.Default(), done: make(chan struct{})}, nil
}

// Hz returns the configured tick rate.
func (t *Ticker) Hz() int { return t.hz }

// SetLogger replaces the ticker's logger, letting kernel.Kernel thread a
// single structured logger through every subsystem.
func (t *Ticker) SetLogger(log *slog.Logger) { t.log = log }

// Run reads timer expirations until Stop is called, invoking onTick for
// each one. onTick is handed its own ack callback, matching
// sched.Scheduler.Tick's signature directly: send_eoi(PIT_IRQ_LINE)
// happens first inside onTick, before any scheduling work, exactly as
// PIT_interrupt_and_schedule orders it.
func (t *Ticker) Run(onTick func(ack func())) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		buf := make([]byte, 8)
		for {
			n, err := unix.Read(t.fd, buf)
			select {
			case <-t.done:
				return
			default:
			}
			if err != nil || n != 8 {
				t.log.Warn("pit: timerfd read failed", "err", err, "n", n)
				continue
			}
			onTick(func() {})
		}
	}()
}

// Stop halts the tick goroutine and releases the timerfd.
func (t *Ticker) Stop() {
	close(t.done)
	unix.Close(t.fd)
	t.wg.Wait()
}
