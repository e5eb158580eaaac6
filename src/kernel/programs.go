package kernel

import (
	"fmt"
	"strings"

	"n391kernel/src/defs"
	"n391kernel/src/sysc"
	"n391kernel/src/util"
)

// registerPrograms installs the four programs spec.md's example sessions
// name: the shell every terminal boots into, and the three commands those
// sessions type at it. sysc itself intentionally ships with none of
// these — a fresh Executor has an empty registry — so this is the one
// place a concrete program set exists.
func registerPrograms(e *sysc.Executor) {
	e.RegisterProgram("shell", shellProgram)
	e.RegisterProgram("ls", lsProgram)
	e.RegisterProgram("cat", catProgram)
	e.RegisterProgram("counter", counterProgram)
}

// shellProgram prints the "391OS> " prompt, reads one line from stdin,
// and forwards it verbatim to execute — including "exit", which
// sysc.Execute special-cases into halting the shell itself. The shell
// never special-cases "exit" on its own end; it only needs to stop
// reading once its own process has been halted out from under it.
func shellProgram(h *sysc.Handle, args string) int {
	prompt := []byte("391OS> ")
	buf := make([]byte, defs.ArgMax+defs.NameMax)

	for {
		if _, errc := h.Write(1, prompt); errc != 0 {
			return -1
		}
		n, errc := h.Read(0, buf)
		if errc != 0 {
			return -1
		}
		line := string(buf[:n])
		name := strings.TrimSpace(firstToken(line))
		if name == "" {
			continue
		}

		status, errc := h.Execute(line)
		if name == "exit" {
			// execute() already halted this shell's own PCB; stop
			// running rather than looping back to a dead process.
			return status
		}
		if errc != 0 {
			h.Write(1, []byte(fmt.Sprintf("391OS: %s: command not found\n", name)))
		}
	}
}

func firstToken(s string) string {
	i := 0
	for i < len(s) && s[i] != ' ' && s[i] != '\n' && s[i] != 0 {
		i++
	}
	return s[:i]
}

// lsProgram opens "." and reads back one directory entry name at a time,
// writing each followed by a newline, matching spec.md's "ls opens '.'
// and loops read()ing entries" example.
func lsProgram(h *sysc.Handle, args string) int {
	fd, errc := h.Open(".")
	if errc != 0 {
		return -1
	}
	defer h.Close(fd)

	buf := make([]byte, defs.NameMax)
	for {
		n, errc := h.Read(fd, buf)
		if errc != 0 {
			return -1
		}
		if n == 0 {
			return 0
		}
		h.Write(1, buf[:n])
		h.Write(1, []byte("\n"))
	}
}

// catProgram opens the named file from its argument string and streams
// it to stdout in 128-byte chunks, per spec.md's cat example.
func catProgram(h *sysc.Handle, args string) int {
	name := strings.TrimSpace(args)
	if name == "" {
		return -1
	}
	fd, errc := h.Open(name)
	if errc != 0 {
		return -1
	}
	defer h.Close(fd)

	buf := make([]byte, 128)
	for {
		n, errc := h.Read(fd, buf)
		if errc != 0 {
			return -1
		}
		if n == 0 {
			return 0
		}
		h.Write(1, buf[:n])
	}
}

// counterProgram is the real program registered for "counter"; it runs
// until its process is halted externally, matching spec.md's "running
// counter simultaneously in all three terminals" demo — there is no
// kernel-native way to bound it, so runCounter's iteration cap exists
// purely so tests can drive the same logic to completion.
func counterProgram(h *sysc.Handle, args string) int {
	return runCounter(h, -1)
}

// runCounter opens the rtc device, sets it to 1024Hz per spec.md's
// rtc_write(1024) example, then reads one tick at a time and writes the
// running total to stdout. iterations < 0 means run forever.
func runCounter(h *sysc.Handle, iterations int) int {
	fd, errc := h.Open("rtc")
	if errc != 0 {
		return -1
	}
	defer h.Close(fd)

	var freq [4]byte
	util.Writen32(freq[:], 0, 1024)
	if _, errc := h.Write(fd, freq[:]); errc != 0 {
		return -1
	}

	tick := make([]byte, 1)
	count := 0
	for iterations < 0 || count < iterations {
		if _, errc := h.Read(fd, tick); errc != 0 {
			return -1
		}
		count++
		h.Write(1, []byte(fmt.Sprintf("%d\n", count)))
	}
	return 0
}
