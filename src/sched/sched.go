// Package sched implements the round-robin terminal scheduler: which
// terminal's process gets the CPU next, and the paging work that makes
// switching to it real (remapping its process slot into the shared user
// window, and aliasing video to the physical card or the terminal's own
// shadow page depending on which terminal is foreground).
//
// original_source/scheduling.c does this with a literal esp/ebp swap
// inside the timer interrupt handler. Go goroutines have no exposed,
// meaningful register state to save and restore that way, so this
// package keeps the parts of the original that are genuinely about
// scheduling policy and address-space setup, and drops the register
// shuffle: there is no stack to switch because every "process" here is
// already a goroutine the Go runtime schedules on its own.
package sched

import (
	"log/slog"
	"sync"

	"n391kernel/src/defs"
	"n391kernel/src/mem"
	"n391kernel/src/term"
	"n391kernel/src/vm"
)

// ForegroundProvider reports which terminal is currently receiving
// keystrokes, so the scheduler knows whether to alias video to the
// physical card or to a terminal's shadow page. kbd.Keyboard satisfies
// this structurally.
type ForegroundProvider interface {
	Foreground() int
}

// Scheduler owns the round-robin terminal selection and the paging
// calls that make a switch real.
type Scheduler struct {
	mu sync.Mutex

	terms [3]*term.Terminal
	pm    *vm.PagingManager
	fg    ForegroundProvider
	log   *slog.Logger

	executing int
	ticks     [3]int
}

// New returns a Scheduler starting with terminal 0 executing, logging
// through slog.Default() until SetLogger installs a kernel-wide one.
func New(terms [3]*term.Terminal, pm *vm.PagingManager, fg ForegroundProvider) *Scheduler {
	return &Scheduler{terms: terms, pm: pm, fg: fg, log: slog.Default()}
}

// SetLogger replaces the scheduler's logger, letting kernel.Kernel
// thread a single structured logger through every subsystem.
func (s *Scheduler) SetLogger(log *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = log
}

// Executing returns the index of the terminal the scheduler last chose.
func (s *Scheduler) Executing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executing
}

// Ticks returns how many times each terminal has been selected, for the
// round-robin fairness property.
func (s *Scheduler) Ticks() [3]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Tick is the timer interrupt handler's scheduling half. It acknowledges
// the interrupt first, matching PIT_interrupt_and_schedule's
// send EOI before doing any switching work, so a second timer interrupt
// is never held off by a slow context switch. If no terminal besides 0
// has a running process, terminal 0 is the only candidate and no paging
// work happens; otherwise it round-robins starting one past whichever
// terminal is currently executing and remaps the winner in.
func (s *Scheduler) Tick(ack func()) {
	if ack != nil {
		ack()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.terms[1].Running() && !s.terms[2].Running() {
		s.ticks[0]++
		return
	}

	next := s.nextLocked()
	if next != s.executing {
		s.log.Debug("scheduler switch", "from", s.executing, "to", next)
	}
	s.executing = next
	s.ticks[next]++
	s.switchToLocked(next)
}

func (s *Scheduler) nextLocked() int {
	for i := 1; i <= 3; i++ {
		idx := (s.executing + i) % 3
		if s.terms[idx].Running() {
			return idx
		}
	}
	return s.executing
}

func (s *Scheduler) switchToLocked(idx int) {
	t := s.terms[idx]
	procNum := t.ActiveProcessNumber()
	if procNum < 0 {
		return
	}

	phys := mem.Pa_t(defs.ProcSlotBase + procNum*defs.ProcSlotSize)
	s.pm.Remap(mem.Va_t(defs.UserVirt), phys)

	if s.fg.Foreground() == idx {
		s.pm.RemapVideoWithTable(mem.Va_t(defs.UserVidVirt), mem.VideoPhys)
	} else {
		s.pm.RemapVideoWithTable(mem.Va_t(defs.UserVidVirt), t.PhysAddr())
	}
}
