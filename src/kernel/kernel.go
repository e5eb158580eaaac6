// Package kernel wires every subsystem package together into the
// runnable machine: paging, the process table, three terminals, the
// keyboard, the real-time clock, the scheduler, the syscall executor,
// the exception handler, the PIT tick source, and the accounting
// counters. It owns the one thing no other package is allowed to own —
// the decision of what programs exist and when a terminal's shell gets
// re-execed — grounded on original_source/kernel.c's init() sequence and
// its launch_term/redirect-to-shell loop.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"n391kernel/src/blue"
	"n391kernel/src/defs"
	"n391kernel/src/fs"
	"n391kernel/src/kbd"
	"n391kernel/src/mem"
	"n391kernel/src/pit"
	"n391kernel/src/proc"
	"n391kernel/src/rtc"
	"n391kernel/src/sched"
	"n391kernel/src/stat"
	"n391kernel/src/sysc"
	"n391kernel/src/term"
	"n391kernel/src/vm"
)

// noopCPU stands in for the control-register/TLB operations a real core
// would perform. There is exactly one CPU and it is this process; paging
// structures are still built and mutated in full, just never loaded into
// a real CR3.
type noopCPU struct{}

func (noopCPU) LoadCR3(mem.Pa_t) {}
func (noopCPU) EnablePSE()       {}
func (noopCPU) EnablePaging()    {}
func (noopCPU) FlushTLB()        {}

// Config selects the simulated device rates; the disk image is passed to
// New separately. Zero values pick the same defaults original_source's
// init() hardcodes.
type Config struct {
	PITHz int // defaults to pit.DefaultHz
}

// Kernel owns one instance of every subsystem and the glue between them:
// the programs registry, the keyboard hotkey policy, and the per-terminal
// boot loop.
type Kernel struct {
	log *slog.Logger

	Fsys  *fs.Reader
	PM    *vm.PagingManager
	Table *proc.Table
	Terms [3]*term.Terminal
	Kbd   *kbd.Keyboard
	RTC   *rtc.Device
	Sched *sched.Scheduler
	Sysc  *sysc.Executor
	Blue  *blue.Handler
	Stat  *stat.Counters
	PIT   *pit.Ticker

	mu      sync.Mutex
	started [3]bool
	g       *errgroup.Group
	gctx    context.Context
}

// New builds a Kernel from a disk image and wires every subsystem's
// cross-references: the scheduler's foreground provider is the keyboard,
// the syscall executor's image source feeds the exception handler, and
// every dispatched syscall reports to the accounting counters.
func New(img []byte, cfg Config, log *slog.Logger) (*Kernel, error) {
	if log == nil {
		log = slog.Default()
	}

	fsys, err := fs.New(img)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	terms := [3]*term.Terminal{
		term.New(0, term.Attr1),
		term.New(1, term.Attr2),
		term.New(2, term.Attr3),
	}

	pm := vm.New(noopCPU{})
	pm.Init()

	table := proc.NewTable()
	keyboard := kbd.New(terms)
	clock := rtc.New()

	scheduler := sched.New(terms, pm, keyboard)
	scheduler.SetLogger(log)

	executor := sysc.New(fsys, table, pm, terms)
	handler := blue.New(terms, executor)
	handler.SetLogger(log)

	counters := stat.New(scheduler)
	executor.SetRecorder(counters)
	executor.RegisterPseudoFile("rtc", defs.D_RTC, clock.Open)
	executor.RegisterPseudoFile("stat", defs.D_STAT, counters.OpenStat)
	executor.RegisterPseudoFile("prof", defs.D_PROF, counters.OpenProf)

	registerPrograms(executor)

	hz := cfg.PITHz
	if hz <= 0 {
		hz = pit.DefaultHz
	}
	ticker, err := pit.New(hz)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	ticker.SetLogger(log)

	k := &Kernel{
		log:   log,
		Fsys:  fsys,
		PM:    pm,
		Table: table,
		Terms: terms,
		Kbd:   keyboard,
		RTC:   clock,
		Sched: scheduler,
		Sysc:  executor,
		Blue:  handler,
		Stat:  counters,
		PIT:   ticker,
	}
	keyboard.OnHotkey = k.launchTerm
	return k, nil
}

// Boot starts terminal 0's shell and the PIT-driven scheduler tick, then
// waits until ctx is canceled or any launched terminal loop fails, and
// returns once every launched loop has returned. A loop sees the
// cancellation only between one shell halting and the next starting.
// Terminals 1 and 2 start lazily, the first time
// alt+F2/F3 brings them to the foreground, matching original_source's
// init() only ever calling launch_term(0) directly.
func (k *Kernel) Boot(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	k.mu.Lock()
	k.g = g
	k.gctx = gctx
	k.mu.Unlock()

	k.PIT.Run(func(ack func()) {
		k.RTC.Tick()
		k.Sched.Tick(ack)
	})
	defer k.PIT.Stop()

	k.launchTerm(0)

	<-gctx.Done()
	return g.Wait()
}

// launchTerm starts termID's boot loop the first time it is called for
// that terminal; later calls (repeat alt+F-key presses) are no-ops,
// exactly as the original only ever calls launch_term(id) once per
// terminal over the machine's lifetime.
func (k *Kernel) launchTerm(termID int) {
	k.mu.Lock()
	if k.started[termID] || k.g == nil {
		k.mu.Unlock()
		return
	}
	k.started[termID] = true
	g, ctx := k.g, k.gctx
	k.mu.Unlock()

	g.Go(func() error { return k.runTerm(ctx, termID) })
}

// runTerm is the kernel's own per-terminal boot loop: every time the
// terminal's root shell halts, spec.md says the kernel re-execs "shell"
// so the prompt returns immediately rather than leaving the terminal
// dead — sysc.Execute itself deliberately doesn't do this (see its
// caller==nil doc comment), so this loop is where that policy lives.
func (k *Kernel) runTerm(ctx context.Context, termID int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, errc := k.Sysc.Execute(nil, termID, "shell"); errc != 0 {
			k.log.Warn("terminal shell failed to start", "terminal", termID, "err", errc)
			return fmt.Errorf("kernel: terminal %d: shell: %v", termID, errc)
		}
	}
}
