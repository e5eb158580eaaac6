// Package blue is the exception handler original_source/lib.h's
// EXCEPTION_THROWN macro builds per-vector: disable further keyboard
// input, clear the screen, paint it blue, and hang forever, recoverable
// only by a hardware reset. Expressed here as a report-returning Trap
// call instead of an infinite busy loop, so a test can observe what a
// real blue screen would have shown instead of having to reset a
// simulated machine to find out.
package blue

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/arch/x86/x86asm"

	"n391kernel/src/defs"
	"n391kernel/src/term"
)

// Exception is one of the 19 IDT vectors original_source/interrupt_table.c
// installs a handler for, in vector order. Vector 15 is reserved by Intel
// and never fires; it's kept here so Exception's numeric value always
// equals its real interrupt vector.
type Exception int

const (
	DivideError Exception = iota
	DebugException
	NMI
	Breakpoint
	Overflow
	BoundsRangeExceeded
	InvalidOpcode
	DeviceNotAvailable
	DoubleFault
	CoprocessorSegmentOverrun
	InvalidTSS
	SegmentNotPresent
	StackFault
	GeneralProtection
	PageFault
	reserved15
	FloatingPoint
	AlignmentCheck
	MachineCheck
)

var exceptionNames = [...]string{
	"Divide Error",
	"Debug Exception",
	"Non Maskable Interrupt Exception",
	"Breakpoint Exception",
	"Overflow Exception",
	"BOUND Range Exceeded Exception",
	"Invalid Opcode Exception",
	"Device Not Available Exception",
	"Double Fault Exception",
	"Coprocessor Segment Exception",
	"Invalid TSS Exception",
	"Segment Not Present",
	"Stack Fault Exception",
	"General Protection Exception",
	"Page Fault Exception",
	"Reserved",
	"Floating Point Exception",
	"Alignment Check Exception",
	"Machine Check Exception",
}

func (e Exception) String() string {
	if int(e) < 0 || int(e) >= len(exceptionNames) {
		return "Unknown Exception"
	}
	return exceptionNames[e]
}

// ImageSource gives the handler the loaded program bytes for a process
// slot, so it can disassemble around the faulting instruction. sysc.Executor
// satisfies this structurally.
type ImageSource interface {
	Image(slot int) []byte
}

// Report is everything a real blue screen would have painted, captured
// instead of printed so it can be asserted on.
type Report struct {
	Exception   Exception
	TerminalID  int
	Message     string
	Disassembly []string
	Stack       []string
}

// Handler traps exceptions for all three terminals.
type Handler struct {
	mu      sync.Mutex
	terms   [3]*term.Terminal
	images  ImageSource
	reports [3]*Report
	log     *slog.Logger
}

// New returns a Handler over terms, reading loaded process images from
// images for disassembly.
func New(terms [3]*term.Terminal, images ImageSource) *Handler {
	return &Handler{terms: terms, images: images, log: slog.Default()}
}

// SetLogger replaces the handler's logger, letting kernel.Kernel thread
// a single structured logger through every subsystem.
func (h *Handler) SetLogger(log *slog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = log
}

// Trap freezes terminalID (blue screen, recovery by reset only) and
// returns a diagnostic report: the exception name, a short disassembly
// of the faulting process's image starting at ip, and the handling
// goroutine's own call stack, in the style of biscuit's
// caller.Callerdump.
func (h *Handler) Trap(terminalID, procSlot int, ip uint32, exc Exception) Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.terms[terminalID]
	t.Freeze(term.Attr(0x19)) // light blue on blue

	h.log.Warn("exception trapped", "terminal", terminalID, "proc", procSlot,
		"ip", fmt.Sprintf("%#x", ip), "exception", exc.String())

	rep := Report{
		Exception:   exc,
		TerminalID:  terminalID,
		Message:     exc.String(),
		Disassembly: h.disassemble(procSlot, ip),
		Stack:       stackTrace(),
	}
	h.reports[terminalID] = &rep
	return rep
}

// LastReport returns the most recent trap recorded for terminalID, or
// nil if it has never faulted.
func (h *Handler) LastReport(terminalID int) *Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reports[terminalID]
}

// Frozen reports whether terminalID has trapped and is no longer
// accepting input.
func (h *Handler) Frozen(terminalID int) bool {
	return h.terms[terminalID].Frozen()
}

// disassemble decodes up to 8 instructions of procSlot's loaded image
// starting at the faulting instruction pointer. ip is a full user
// virtual address; the image itself starts at defs.LoadAddr.
func (h *Handler) disassemble(procSlot int, ip uint32) []string {
	if h.images == nil {
		return nil
	}
	img := h.images.Image(procSlot)
	if img == nil {
		return nil
	}
	off := int(ip) - defs.LoadAddr
	if off < 0 || off >= len(img) {
		return nil
	}
	code := img[off:]

	var lines []string
	for len(code) > 0 && len(lines) < 8 {
		inst, err := x86asm.Decode(code, 32)
		if err != nil {
			lines = append(lines, fmt.Sprintf("(bad instruction: %v)", err))
			break
		}
		lines = append(lines, inst.String())
		if inst.Len == 0 {
			break
		}
		code = code[inst.Len:]
	}
	return lines
}

// stackTrace renders the calling goroutine's stack the way
// caller.Callerdump does, returning lines instead of printing them.
func stackTrace() []string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var lines []string
	for {
		fr, more := frames.Next()
		lines = append(lines, fmt.Sprintf("%s (%s:%d)", fr.Function, fr.File, fr.Line))
		if !more {
			break
		}
	}
	return lines
}
