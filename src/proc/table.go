package proc

import (
	"sync"

	"n391kernel/src/defs"
)

// Table is the fixed six-entry process table. A nil slot is free.
type Table struct {
	mu    sync.Mutex
	slots [defs.MaxProcs]*PCB
}

// NewTable returns an empty process table.
func NewTable() *Table {
	return &Table{}
}

// Alloc claims the lowest free slot, installs a fresh PCB there, and
// returns its slot index. EAGAIN if every slot is taken.
func (t *Table) Alloc() (int, *PCB, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < defs.MaxProcs; i++ {
		if t.slots[i] == nil {
			pcb := &PCB{}
			t.slots[i] = pcb
			return i, pcb, 0
		}
	}
	return -1, nil, defs.EAGAIN
}

// Free releases slot, making it available to a later Alloc.
func (t *Table) Free(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[slot] = nil
}

// Get returns the PCB in slot, or nil if it's free.
func (t *Table) Get(slot int) *PCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[slot]
}

// Lookup finds the live PCB whose kernel stack region esp falls inside,
// implementing the "current PCB via esp mask" invariant against the
// table rather than a real CPU register.
func (t *Table) Lookup(esp uintptr) *PCB {
	addr := CurrentPCBAddress(esp)
	for i := 0; i < defs.MaxProcs; i++ {
		if PCBAddress(i) == addr {
			return t.Get(i)
		}
	}
	return nil
}

// Init populates pcb for slot as execute does: argument string, parent
// process number, owning terminal, fd 0/1 set to stdin/stdout and
// in-use, every other fd cleared, and a fresh resume channel.
func (t *Table) Init(slot int, pcb *PCB, parentProcNum, termID int, args string, termIO TerminalIO) {
	pcb.ProcNum = slot
	pcb.ParentProcNum = parentProcNum
	pcb.Args = args
	pcb.TermID = termID
	pcb.TermIO = termIO
	pcb.Resume = make(chan int, 1)
	for i := range pcb.Fds {
		pcb.Fds[i] = Fd{pcb: pcb}
	}
	pcb.Fds[0] = Fd{Ops: Stdin, InUse: true, pcb: pcb}
	pcb.Fds[1] = Fd{Ops: Stdout, InUse: true, pcb: pcb}
}
