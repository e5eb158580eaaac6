// Package sysc implements the eight system calls — halt, execute, read,
// write, open, close, getargs, vidmap — plus the execute/halt lifecycle
// that starts and tears down a process, grounded on
// original_source/system_calls.c.
//
// The original reaches user code by building a synthetic interrupt-return
// frame and jumping to an ELF entry point; there is no x86 to jump to
// here. Instead, a validated ELF image's name is looked up in a small
// registry of Go functions (Program), and execute's nested, blocking call
// shape is kept exactly: Execute spawns the program's goroutine and
// blocks on the new process's PCB.Resume channel exactly where the
// original blocks on the IRET return label, returning only once that
// process calls halt.
package sysc

import (
	"sync"

	"n391kernel/src/defs"
	"n391kernel/src/fs"
	"n391kernel/src/mem"
	"n391kernel/src/proc"
	"n391kernel/src/term"
	"n391kernel/src/vm"
)

// Call numbers as assigned by original_source/system_calls.h, preserved
// in full including the two never-implemented ones so the call-number
// space this kernel recognizes is total, not just the eight it serves.
const (
	CallHalt       = 1
	CallExecute    = 2
	CallRead       = 3
	CallWrite      = 4
	CallOpen       = 5
	CallClose      = 6
	CallGetargs    = 7
	CallVidmap     = 8
	CallSetHandler = 9
	CallSigreturn  = 10
)

// elfMagic is the four-byte header every executable on the image must
// start with.
var elfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

// SyscallRecorder is notified of every dispatched call, by process slot
// and call number, for src/stat's D_STAT accounting. stat.Counters
// satisfies this structurally, the same import-cycle-avoidance pattern
// as sched.ForegroundProvider and blue.ImageSource.
type SyscallRecorder interface {
	Record(procNum, call int)
}

// Program is a loaded executable's entry point: the Go stand-in for
// "jump to the ELF entry point in ring 3". It runs until the process
// exits and returns the status halt would receive.
type Program func(h *Handle, args string) int

// Executor wires the filesystem, process table, paging manager, and
// terminals together and dispatches every system call against an
// explicit caller PCB — the Go-native replacement for "whichever PCB
// the current kernel stack pointer masks to" (see proc.PCBAddress).
type Executor struct {
	mu sync.Mutex

	fsys  *fs.Reader
	table *proc.Table
	pm    *vm.PagingManager
	terms [3]*term.Terminal

	programs map[string]Program
	pseudo   map[string]pseudoFile
	images   map[int][]byte
	rec      SyscallRecorder
}

// pseudoFile is what RegisterPseudoFile installs for one synthesized
// name: its device id (one of the defs.D_* constants, reported through
// Fd.Dev) and the open() handler that builds its vtable.
type pseudoFile struct {
	dev  int
	open func(termID int) proc.FileOps
}

// New returns an Executor. terms must be the same three terminals the
// scheduler and keyboard driver were built with.
func New(fsys *fs.Reader, table *proc.Table, pm *vm.PagingManager, terms [3]*term.Terminal) *Executor {
	return &Executor{
		fsys:     fsys,
		table:    table,
		pm:       pm,
		terms:    terms,
		programs: make(map[string]Program),
		pseudo:   make(map[string]pseudoFile),
		images:   make(map[int][]byte),
	}
}

// RegisterProgram installs the Go function that stands in for the named
// executable's entry point. Must be called before any Execute names it.
func (e *Executor) RegisterProgram(name string, p Program) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs[name] = p
}

// SetRecorder installs the accounting sink every dispatched call is
// reported to. Must be set before Execute is first called to capture a
// complete per-process count.
func (e *Executor) SetRecorder(rec SyscallRecorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec = rec
}

func (e *Executor) record(procNum, call int) {
	e.mu.Lock()
	rec := e.rec
	e.mu.Unlock()
	if rec != nil {
		rec.Record(procNum, call)
	}
}

// RegisterPseudoFile installs an open() handler for a name that never
// appears as a directory entry on the disk image — original_source's
// treatment of "rtc", extended to any device src/stat adds later. dev
// is one of the defs.D_* device identifiers and is reported back
// through the fd opened against name, the same role biscuit's
// defs/device.go ids play for its pseudo-files.
func (e *Executor) RegisterPseudoFile(name string, dev int, open func(termID int) proc.FileOps) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pseudo[name] = pseudoFile{dev: dev, open: open}
}

// Image returns the bytes loaded for the process in slot, or nil if it
// isn't running a loaded program — used by blue.Handler to disassemble
// around a faulting instruction.
func (e *Executor) Image(slot int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[slot]
}

// parseCommand splits command into a program name and a single argument
// token, exactly as original_source/system_calls.c's execute() does:
// skip leading spaces, take the name up through the next space/newline/
// NUL, then take one more such token as the argument. Anything after the
// second token is ignored, matching the original's fixed two-token
// parse (getargs only ever returns that one token).
func parseCommand(command string) (name, arg string) {
	i := 0
	for i < len(command) && command[i] == ' ' {
		i++
	}
	start := i
	for i < len(command) && command[i] != ' ' && command[i] != '\n' && command[i] != 0 {
		i++
	}
	name = command[start:i]

	j := i + 1
	if j > len(command) {
		return name, ""
	}
	k := j
	for k < len(command) && command[k] != ' ' && command[k] != '\n' && command[k] != 0 {
		k++
	}
	return name, command[j:k]
}

// Execute parses command, validates and loads the named executable, and
// blocks until it halts. caller is the PCB of the process making this
// call (nil only for the kernel's own per-terminal boot loop starting a
// terminal's first shell). The "exit" special case halts caller directly
// instead of starting anything, per spec.
func (e *Executor) Execute(caller *proc.PCB, termID int, command string) (int, defs.Err_t) {
	if caller != nil {
		e.record(caller.ProcNum, CallExecute)
	}
	name, argStr := parseCommand(command)
	if name == "" {
		return -1, defs.ENOENT
	}
	if name == "exit" {
		if caller == nil {
			return -1, defs.EINVAL
		}
		return e.Halt(caller, 0), 0
	}
	if len(name) > defs.NameMax {
		return -1, defs.ENAMETOOLONG
	}
	if len(argStr) > defs.ArgMax {
		return -1, defs.EINVAL
	}

	dentry, ok := e.fsys.LookupByName(name)
	if !ok {
		return -1, defs.ENOENT
	}

	var hdr [28]byte
	n, err := e.fsys.ReadData(dentry.Inode, 0, hdr[:], uint32(len(hdr)))
	if err != nil || n < uint32(len(hdr)) || hdr[0] != elfMagic[0] || hdr[1] != elfMagic[1] ||
		hdr[2] != elfMagic[2] || hdr[3] != elfMagic[3] {
		return -1, defs.ENOENT
	}

	slot, childPCB, errc := e.table.Alloc()
	if errc != 0 {
		return -1, errc
	}

	phys := mem.Pa_t(defs.ProcSlotBase + slot*defs.ProcSlotSize)
	if err := e.pm.Remap(mem.Va_t(defs.UserVirt), phys); err != nil {
		e.table.Free(slot)
		return -1, defs.EFAULT
	}

	image := make([]byte, 64*1024)
	n2, _ := e.fsys.ReadData(dentry.Inode, 0, image, uint32(len(image)))
	e.mu.Lock()
	e.images[slot] = image[:n2]
	e.mu.Unlock()

	t := e.terms[termID]
	firstInTerm := !t.Running()
	parentProcNum := slot
	if !firstInTerm {
		parentProcNum = t.ActiveProcessNumber()
	}

	e.table.Init(slot, childPCB, parentProcNum, termID, argStr, t)
	if firstInTerm {
		childPCB.ParentProcNum = slot
		t.SetRunning(true)
	}
	t.SetActiveProcessNumber(slot)

	go e.run(slot, childPCB, name, argStr)

	status := <-childPCB.Resume
	return status, 0
}

// run drives a loaded program to completion and halts its process,
// unless the program already halted itself (via the "exit" command),
// in which case its slot is no longer the one we started with.
func (e *Executor) run(slot int, pcb *proc.PCB, name, args string) {
	e.mu.Lock()
	prog, ok := e.programs[name]
	e.mu.Unlock()

	status := -1
	if ok {
		status = prog(&Handle{ex: e, pcb: pcb}, args)
	}

	if e.table.Get(slot) == pcb {
		e.Halt(pcb, status)
	}
}

// Halt releases pcb's slot, closes every open fd, restores the owning
// terminal's active process to pcb's parent (or marks the terminal not
// running if pcb was its root), and wakes whichever Execute call is
// blocked waiting for this process, per §4.4.
func (e *Executor) Halt(pcb *proc.PCB, status int) int {
	e.record(pcb.ProcNum, CallHalt)
	for i := range pcb.Fds {
		fd := &pcb.Fds[i]
		if fd.InUse {
			fd.Ops.Close(fd)
			fd.InUse = false
		}
	}

	root := pcb.ProcNum == pcb.ParentProcNum
	t := e.terms[pcb.TermID]

	e.table.Free(pcb.ProcNum)
	e.mu.Lock()
	delete(e.images, pcb.ProcNum)
	e.mu.Unlock()

	if root {
		t.SetRunning(false)
		t.SetActiveProcessNumber(-1)
	} else {
		t.SetActiveProcessNumber(pcb.ParentProcNum)
		if e.table.Get(pcb.ParentProcNum) != nil {
			phys := mem.Pa_t(defs.ProcSlotBase + pcb.ParentProcNum*defs.ProcSlotSize)
			e.pm.Remap(mem.Va_t(defs.UserVirt), phys)
		}
	}

	select {
	case pcb.Resume <- status:
	default:
	}
	return status
}

// Read is syscall 3: fail if fd is out of range, buf is nil, or fd isn't
// in use; else delegate to the fd's vtable.
func (e *Executor) Read(pcb *proc.PCB, fd int, buf []byte) (int, defs.Err_t) {
	e.record(pcb.ProcNum, CallRead)
	if fd < 0 || fd >= defs.MaxFds {
		return -1, defs.EBADF
	}
	if buf == nil {
		return -1, defs.EFAULT
	}
	f := &pcb.Fds[fd]
	if !f.InUse {
		return -1, defs.EBADF
	}
	return f.Ops.Read(f, buf)
}

// Write is syscall 4, symmetric to Read.
func (e *Executor) Write(pcb *proc.PCB, fd int, buf []byte) (int, defs.Err_t) {
	e.record(pcb.ProcNum, CallWrite)
	if fd < 0 || fd >= defs.MaxFds {
		return -1, defs.EBADF
	}
	if buf == nil {
		return -1, defs.EFAULT
	}
	f := &pcb.Fds[fd]
	if !f.InUse {
		return -1, defs.EBADF
	}
	return f.Ops.Write(f, buf)
}

// Open is syscall 5: locate name, allocate the lowest free fd at or
// above defs.MinUserFd, install the type-appropriate vtable, and return
// the fd index.
func (e *Executor) Open(pcb *proc.PCB, name string) (int, defs.Err_t) {
	e.record(pcb.ProcNum, CallOpen)
	if len(name) > defs.NameMax {
		return -1, defs.ENAMETOOLONG
	}
	e.mu.Lock()
	pf, isPseudo := e.pseudo[name]
	e.mu.Unlock()

	var ops proc.FileOps
	var inode uint32
	var hasInode bool
	var dev int

	if isPseudo {
		ops = pf.open(pcb.TermID)
		dev = pf.dev
	} else {
		dentry, ok := e.fsys.LookupByName(name)
		if !ok {
			return -1, defs.ENOENT
		}
		switch dentry.Type {
		case fs.TypeDir:
			ops = proc.NewDirOps(e.fsys)
		case fs.TypeFile:
			ops = proc.NewFileOps(e.fsys)
			inode, hasInode = dentry.Inode, true
		default:
			ops = proc.Null
			dev = defs.D_NULL
		}
	}

	fdIdx, errc := pcb.AllocFd()
	if errc != 0 {
		return -1, errc
	}
	pcb.Fds[fdIdx] = proc.Fd{Ops: ops, Inode: inode, HasInode: hasInode, InUse: true, Dev: dev}
	return fdIdx, 0
}

// Close is syscall 6: fail if fd is out of the user-openable range
// [MinUserFd, MaxFds) or not in use; else call its vtable's Close and
// free the slot.
func (e *Executor) Close(pcb *proc.PCB, fd int) defs.Err_t {
	e.record(pcb.ProcNum, CallClose)
	if fd < defs.MinUserFd || fd >= defs.MaxFds {
		return defs.EBADF
	}
	f := &pcb.Fds[fd]
	if !f.InUse {
		return defs.EBADF
	}
	err := f.Ops.Close(f)
	f.InUse = false
	if err != 0 {
		return err
	}
	return 0
}

// Getargs is syscall 7: copy pcb's argument buffer into buf.
func (e *Executor) Getargs(pcb *proc.PCB, buf []byte) defs.Err_t {
	e.record(pcb.ProcNum, CallGetargs)
	if buf == nil {
		return defs.EFAULT
	}
	n := copy(buf, pcb.Args)
	if n < len(buf) {
		buf[n] = 0
	}
	return 0
}

// Vidmap is syscall 8: alias physical video memory at the fixed user
// virtual address and report it through out. The scheduler is still
// free to re-alias this same mapping to a shadow page on the next tick
// if the caller's terminal isn't foreground, exactly as in the original.
//
// out is a real Go pointer, not a simulated user-space address, so
// only the null case is checked here; see DESIGN.md for why the
// kernel-region half of this validation has no Go-native equivalent.
func (e *Executor) Vidmap(pcb *proc.PCB, out *mem.Va_t) (mem.Va_t, defs.Err_t) {
	e.record(pcb.ProcNum, CallVidmap)
	if out == nil {
		return 0, defs.EFAULT
	}
	virt := mem.Va_t(defs.UserVidVirt)
	if err := e.pm.RemapVideoWithTable(virt, mem.VideoPhys); err != nil {
		return 0, defs.EFAULT
	}
	*out = virt
	return virt, 0
}

// SetHandler is syscall 9, never implemented upstream; kept as a total
// stub so the call-number space this kernel recognizes has no gaps.
func (e *Executor) SetHandler(pcb *proc.PCB, signum int, handlerAddr uintptr) (int, defs.Err_t) {
	return -1, defs.EINVAL
}

// Sigreturn is syscall 10, never implemented upstream.
func (e *Executor) Sigreturn(pcb *proc.PCB) (int, defs.Err_t) {
	return -1, defs.EINVAL
}

// Handle is what a running Program gets instead of ring-3 access to the
// syscall gate: the eight real calls, each bound to this process's own
// PCB so a program can't reach another process's fds. The two stubs
// (SetHandler, Sigreturn) are reachable only on Executor.
type Handle struct {
	ex  *Executor
	pcb *proc.PCB
}

func (h *Handle) Halt(status int) int                      { return h.ex.Halt(h.pcb, status) }
func (h *Handle) Execute(cmd string) (int, defs.Err_t)      { return h.ex.Execute(h.pcb, h.pcb.TermID, cmd) }
func (h *Handle) Read(fd int, buf []byte) (int, defs.Err_t) { return h.ex.Read(h.pcb, fd, buf) }
func (h *Handle) Write(fd int, buf []byte) (int, defs.Err_t) {
	return h.ex.Write(h.pcb, fd, buf)
}
func (h *Handle) Open(name string) (int, defs.Err_t) { return h.ex.Open(h.pcb, name) }
func (h *Handle) Close(fd int) defs.Err_t            { return h.ex.Close(h.pcb, fd) }
func (h *Handle) Getargs(buf []byte) defs.Err_t      { return h.ex.Getargs(h.pcb, buf) }
func (h *Handle) Vidmap(out *mem.Va_t) (mem.Va_t, defs.Err_t) {
	return h.ex.Vidmap(h.pcb, out)
}
func (h *Handle) Args() string { return h.pcb.Args }
