// Package proc implements the process control block, the six-slot
// process table, and the polymorphic file-descriptor dispatch every
// syscall reads and writes through.
package proc

import "n391kernel/src/defs"

// TerminalIO is the interface a PCB's owning terminal satisfies so stdin
// and stdout can be dispatched without this package depending on
// anything terminal-shaped. ReadLine blocks until a full line is
// available and copies as much of it as fits into buf.
type TerminalIO interface {
	ReadLine(buf []byte) (int, defs.Err_t)
	Write(buf []byte) (int, defs.Err_t)
}

// PCB is the per-process kernel-resident state. One PCB exists per live
// process slot; it is never copied and never referenced by value.
type PCB struct {
	Fds [defs.MaxFds]Fd

	ProcNum       int
	ParentProcNum int
	Args          string
	TermID        int
	TermIO        TerminalIO

	// Resume carries the exit status from halt back to the execute call
	// that's blocked waiting for this process to finish. It replaces the
	// original's labeled IRET return address with an explicit per-PCB
	// value, per the redesign direction for the kernel-to-user
	// transition: one entry function, one resume value, no assembly
	// label.
	Resume chan int
}

// Fd is one file-descriptor table slot: the polymorphic operations it
// dispatches to, which inode (if any) it was opened against, its cursor,
// and whether the slot is occupied.
type Fd struct {
	Ops          FileOps
	Inode        uint32
	HasInode     bool
	FilePosition uint32
	InUse        bool
	Dev          int // one of defs.D_*, set for pseudo-files and the null sink

	pcb *PCB
}

// AllocFd returns the lowest-index fd at or above defs.MinUserFd that is
// not in use, or EMFILE if the table is full.
func (p *PCB) AllocFd() (int, defs.Err_t) {
	for i := defs.MinUserFd; i < defs.MaxFds; i++ {
		if !p.Fds[i].InUse {
			return i, 0
		}
	}
	return -1, defs.EMFILE
}

// kstackMask isolates the 8KiB-aligned region a simulated kernel stack
// pointer falls within.
const kstackMask = uintptr(defs.KstackSize - 1)

// PCBAddress returns the address a PCB in the given slot lives at: the
// top of that slot's 8KiB kernel stack region, counting down from
// defs.KstackTop. This is the placement invariant spec'd for "current
// PCB via esp mask": slot N's PCB sits at KstackTop - (N+1)*KstackSize.
func PCBAddress(slot int) uintptr {
	return uintptr(defs.KstackTop) - uintptr(slot+1)*uintptr(defs.KstackSize)
}

// CurrentPCBAddress masks a simulated kernel stack pointer down to the
// start of its 8KiB region, which by construction is that process's
// PCBAddress. There is no real register to read here — processes are
// host goroutines, not hardware threads — so callers that want "the
// current PCB" pass the stack-pointer value this kernel assigned the
// process at schedule time (see proc.Table.Lookup) rather than reading
// an actual CPU register.
func CurrentPCBAddress(esp uintptr) uintptr {
	return esp &^ kstackMask
}
