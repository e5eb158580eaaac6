package proc

import "n391kernel/src/defs"

// FileOps is the polymorphic file-descriptor vtable from the spec,
// expressed as an interface instead of four function pointers, per the
// redesign direction: reject invalid call combinations (write to stdin,
// read from stdout) inside each implementation rather than at a shared
// dispatch site.
type FileOps interface {
	Read(fd *Fd, buf []byte) (int, defs.Err_t)
	Write(fd *Fd, buf []byte) (int, defs.Err_t)
	Close(fd *Fd) defs.Err_t
}

type stdinOps struct{}

// Stdin is the read-only vtable installed at fd 0 by every freshly
// executed process. Reads block on the owning terminal's line buffer.
var Stdin FileOps = stdinOps{}

func (stdinOps) Read(fd *Fd, buf []byte) (int, defs.Err_t) {
	if fd.pcb == nil || fd.pcb.TermIO == nil {
		return -1, defs.EFAULT
	}
	return fd.pcb.TermIO.ReadLine(buf)
}

func (stdinOps) Write(fd *Fd, buf []byte) (int, defs.Err_t) {
	return -1, defs.EINVAL
}

func (stdinOps) Close(fd *Fd) defs.Err_t {
	return 0
}

type stdoutOps struct{}

// Stdout is the write-only vtable installed at fd 1.
var Stdout FileOps = stdoutOps{}

func (stdoutOps) Read(fd *Fd, buf []byte) (int, defs.Err_t) {
	return -1, defs.EINVAL
}

func (stdoutOps) Write(fd *Fd, buf []byte) (int, defs.Err_t) {
	if fd.pcb == nil || fd.pcb.TermIO == nil {
		return -1, defs.EFAULT
	}
	return fd.pcb.TermIO.Write(buf)
}

func (stdoutOps) Close(fd *Fd) defs.Err_t {
	return 0
}

type nullOps struct{}

// Null is the vtable for devices that reject every operation.
var Null FileOps = nullOps{}

func (nullOps) Read(fd *Fd, buf []byte) (int, defs.Err_t)  { return -1, defs.EINVAL }
func (nullOps) Write(fd *Fd, buf []byte) (int, defs.Err_t) { return -1, defs.EINVAL }
func (nullOps) Close(fd *Fd) defs.Err_t                    { return 0 }
